package quotes

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// SampleSize is the number of quotations returned for an empty query.
	SampleSize = 5
	// MaxResults caps the number of matches returned for a search query.
	MaxResults = 50
)

// idNamespace scopes the name-based result ids.
var idNamespace = uuid.MustParse("5b7c1f3e-6a0d-4c1b-9e57-2f1d8a6c4e90")

// Quotation is one line of the source file.
type Quotation struct {
	ID   string
	Text string
}

// ResultItem is a quotation shaped for an inline answer.
type ResultItem struct {
	ID   string
	Text string
}

// ResultSet is the ordered answer to one query.
type ResultSet []ResultItem

// Texts returns the display texts in order.
func (rs ResultSet) Texts() []string {
	out := make([]string, len(rs))
	for i, it := range rs {
		out[i] = it.Text
	}
	return out
}

// Index is an immutable, ordered quotation store. It is safe for concurrent use.
type Index struct {
	items []Quotation
}

// Load reads quotations from the file at path.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open quotations: %w", err)
	}
	defer f.Close()

	idx, err := New(f)
	if err != nil {
		return nil, fmt.Errorf("read quotations %s: %w", path, err)
	}
	return idx, nil
}

// New builds an Index from line-delimited text. Lines that are not valid
// UTF-8 are skipped.
func New(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)
	idx := &Index{}

	for lineNo := 0; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		// Trailing read at EOF with nothing left is not a line.
		if line == "" && err != nil {
			break
		}

		text := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if utf8.ValidString(text) {
			idx.items = append(idx.items, Quotation{
				ID:   quotationID(lineNo, text),
				Text: text,
			})
		}

		if err != nil {
			break
		}
	}

	return idx, nil
}

// FromStrings builds an Index directly from texts, in order.
func FromStrings(texts ...string) *Index {
	idx := &Index{items: make([]Quotation, 0, len(texts))}
	for i, t := range texts {
		idx.items = append(idx.items, Quotation{ID: quotationID(i, t), Text: t})
	}
	return idx
}

func quotationID(lineNo int, text string) string {
	return uuid.NewSHA1(idNamespace, []byte(strconv.Itoa(lineNo)+"\x00"+text)).String()
}

// Len reports the number of stored quotations.
func (idx *Index) Len() int {
	return len(idx.items)
}

// Query selects quotations for q. An empty q samples SampleSize quotations
// at random using r, or the package-level source when r is nil. A non-empty
// q returns the first MaxResults quotations containing q, in store order.
func (idx *Index) Query(q string, r *rand.Rand) ResultSet {
	if q == "" {
		return idx.sample(r)
	}
	return idx.search(q)
}

func (idx *Index) search(q string) ResultSet {
	rs := ResultSet{}
	for _, it := range idx.items {
		if !strings.Contains(it.Text, q) {
			continue
		}
		rs = append(rs, ResultItem(it))
		if len(rs) >= MaxResults {
			break
		}
	}
	return rs
}

func (idx *Index) sample(r *rand.Rand) ResultSet {
	n := len(idx.items)
	if n <= SampleSize {
		rs := make(ResultSet, n)
		for i, it := range idx.items {
			rs[i] = ResultItem(it)
		}
		return rs
	}

	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}

	// Floyd's algorithm: SampleSize distinct positions in O(SampleSize).
	picked := make(map[int]struct{}, SampleSize)
	rs := make(ResultSet, 0, SampleSize)
	for j := n - SampleSize; j < n; j++ {
		t := intN(j + 1)
		if _, dup := picked[t]; dup {
			t = j
		}
		picked[t] = struct{}{}
		rs = append(rs, ResultItem(idx.items[t]))
	}
	return rs
}
