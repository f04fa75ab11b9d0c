package selection

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Entry is one line of a segment list: a file name and a segment index.
type Entry struct {
	File    string
	Segment int
}

// List is a parsed segment list in file order.
type List []Entry

// Group returns the segment indices per file and the files in first-seen order.
func (l List) Group() (map[string][]int, []string) {
	groups := make(map[string][]int)
	var order []string
	for _, e := range l {
		if _, ok := groups[e.File]; !ok {
			order = append(order, e.File)
		}
		groups[e.File] = append(groups[e.File], e.Segment)
	}
	return groups, order
}

// ParseList reads "<file> <segment_index>" lines. Blank lines are skipped.
func ParseList(r io.Reader) (List, error) {
	var list List
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected \"<file> <segment_index>\"", line)
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad segment index %q: %w", line, fields[1], err)
		}
		list = append(list, Entry{File: fields[0], Segment: idx})
	}
	return list, sc.Err()
}

// LoadList reads a segment list file.
func LoadList(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	list, err := ParseList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// WriteEntry appends one list line.
func WriteEntry(w io.Writer, e Entry) error {
	_, err := fmt.Fprintf(w, "%s %d\n", e.File, e.Segment)
	return err
}
