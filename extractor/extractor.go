package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrAnchorMissing means the selector matched nothing, usually because
	// the shop changed its page layout.
	ErrAnchorMissing = errors.New("anchor not found in markup")
	// ErrPriceFormat means the price node text is not a number.
	ErrPriceFormat = errors.New("unparsable price")
)

// Error describes a failed extraction.
type Error struct {
	Field    string // "name" or "price"
	Selector string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Field, e.Selector, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Selectors locate the product fields in a page.
type Selectors struct {
	Name           string // CSS selector of the product name node
	Price          string // CSS selector of the price node
	CurrencySuffix string // stripped from the price text, e.g. " zł"
}

// Extractor pulls the product name and price out of page markup.
type Extractor struct {
	sel Selectors
}

var multiSpace = regexp.MustCompile(`\s{2,}`)

// New returns an Extractor using sel.
func New(sel Selectors) *Extractor {
	return &Extractor{sel: sel}
}

// ExtractName returns the text of the first node matching the name
// selector, trimmed and with whitespace runs collapsed to one space.
func (x *Extractor) ExtractName(markup []byte) (string, error) {
	doc, err := x.parse(markup, "name", x.sel.Name)
	if err != nil {
		return "", err
	}
	return x.name(doc)
}

// ExtractPrice parses the text of the first node matching the price
// selector. "3 499,00 zł" becomes 3499.00.
func (x *Extractor) ExtractPrice(markup []byte) (float64, error) {
	doc, err := x.parse(markup, "price", x.sel.Price)
	if err != nil {
		return 0, err
	}
	return x.price(doc)
}

// Extract returns both fields from a single parse of the markup.
func (x *Extractor) Extract(markup []byte) (string, float64, error) {
	doc, err := x.parse(markup, "page", "")
	if err != nil {
		return "", 0, err
	}
	name, err := x.name(doc)
	if err != nil {
		return "", 0, err
	}
	price, err := x.price(doc)
	if err != nil {
		return "", 0, err
	}
	return name, price, nil
}

func (x *Extractor) parse(markup []byte, field, selector string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, &Error{Field: field, Selector: selector, Err: err}
	}
	return doc, nil
}

func (x *Extractor) name(doc *goquery.Document) (string, error) {
	text, err := first(doc, "name", x.sel.Name)
	if err != nil {
		return "", err
	}
	return multiSpace.ReplaceAllString(strings.TrimSpace(text), " "), nil
}

func (x *Extractor) price(doc *goquery.Document) (float64, error) {
	text, err := first(doc, "price", x.sel.Price)
	if err != nil {
		return 0, err
	}
	price, err := ParsePrice(text, x.sel.CurrencySuffix)
	if err != nil {
		return 0, &Error{Field: "price", Selector: x.sel.Price, Err: err}
	}
	return price, nil
}

func first(doc *goquery.Document, field, selector string) (string, error) {
	node := doc.Find(selector).First()
	if node.Length() == 0 {
		return "", &Error{Field: field, Selector: selector, Err: ErrAnchorMissing}
	}
	return node.Text(), nil
}

// ParsePrice normalizes a displayed price: the currency suffix and all
// whitespace (including no-break spaces used as thousands separators) are
// removed and a decimal comma becomes a dot.
func ParsePrice(text, currencySuffix string) (float64, error) {
	s := strings.TrimSpace(text)
	if currencySuffix != "" {
		s = strings.TrimSuffix(s, strings.TrimSpace(currencySuffix))
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, ",", ".")

	price, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: %q", ErrPriceFormat, text)
	}
	return price, nil
}
