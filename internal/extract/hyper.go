// Package extract reads hyperparameters from the region of a source file
// enclosed by two marker lines, for example:
//
//	############hyper
//	lr = 0.01 # some comments
//	char_embed = word_embed = 300
//	############hyper
//
// Only the region between the first two markers is read. Values are kept as
// raw strings and the first binding of a name wins.
package extract

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/containerd/errdefs"

	"github.com/imishinist/fitlog/internal/models"
)

var ErrExtraction = fmt.Errorf("hyperparameter extraction failed: %w", errdefs.ErrInvalidArgument)

// DefaultMarker matches a run of '#' followed by the word "hyper".
var DefaultMarker = regexp.MustCompile(`^#+\s*hyper$`)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

const commentStart = '#'

// Block is the ordered result of an extraction.
type Block struct {
	Names  []string
	Values map[string]string
}

func (b Block) Len() int { return len(b.Names) }

// Map converts the block into a mapping of string values.
func (b Block) Map() *models.Map {
	m := models.NewMap()
	for _, name := range b.Names {
		m.Set(name, models.String(b.Values[name]))
	}
	return m
}

func (b *Block) bind(name, value string) {
	if _, ok := b.Values[name]; ok {
		return
	}
	b.Names = append(b.Names, name)
	b.Values[name] = value
}

type Extractor struct {
	// Marker is matched against trimmed lines.
	Marker *regexp.Regexp
}

func New() *Extractor {
	return &Extractor{Marker: DefaultMarker}
}

type lexState int

const (
	outsideRegion lexState = iota
	insideRegion
	doneRegion
)

// ExtractFile reads the hyperparameter block of the file at path.
func (e *Extractor) ExtractFile(path string) (Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return Block{}, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	b, err := e.Extract(f)
	if err != nil {
		return Block{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

func (e *Extractor) Extract(r io.Reader) (Block, error) {
	marker := e.Marker
	if marker == nil {
		marker = DefaultMarker
	}

	block := Block{Values: map[string]string{}}
	state := outsideRegion

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() && state != doneRegion {
		line := strings.TrimSpace(sc.Text())
		if marker.MatchString(line) {
			state++
			continue
		}
		if state != insideRegion || line == "" {
			continue
		}
		parseAssignments(&block, line)
	}
	if err := sc.Err(); err != nil {
		return Block{}, fmt.Errorf("failed to read source: %w", err)
	}

	switch state {
	case outsideRegion:
		return Block{}, fmt.Errorf("%w: marker line not found", ErrExtraction)
	case insideRegion:
		return Block{}, fmt.Errorf("%w: closing marker line not found", ErrExtraction)
	}
	return block, nil
}

// parseAssignments binds every name of a (possibly chained) assignment to
// the rightmost operand.
func parseAssignments(b *Block, line string) {
	parts := splitAssignments(stripComment(line))
	if len(parts) < 2 {
		return
	}
	value := strings.TrimSpace(parts[len(parts)-1])
	if value == "" {
		return
	}
	for _, raw := range parts[:len(parts)-1] {
		name := strings.TrimSpace(raw)
		// annotated assignment: `lr: float = 0.1`
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = strings.TrimSpace(name[:i])
		}
		if !identifier.MatchString(name) {
			continue
		}
		b.bind(name, value)
	}
}

// stripComment cuts the line at the first comment token outside quotes.
func stripComment(line string) string {
	var quote rune
	for i, c := range line {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == commentStart:
			return line[:i]
		}
	}
	return line
}

// splitAssignments splits on bare '=' outside quotes, leaving comparison
// and augmented operators (==, <=, +=, ...) intact.
func splitAssignments(s string) []string {
	var (
		parts []string
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '=':
			if i+1 < len(s) && s[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.IndexByte("=!<>+-*/%&|^:@", s[i-1]) >= 0 {
				continue
			}
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
