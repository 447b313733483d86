package generic

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// Common errors
var (
	ErrUnexpectedEOF     = errors.New("unexpected end of data")
	ErrInvalidPDF        = errors.New("invalid PDF format")
	ErrInvalidObject     = errors.New("invalid PDF object")
	ErrInvalidStream     = errors.New("invalid PDF stream")
	ErrInvalidDictionary = errors.New("invalid PDF dictionary")
	ErrInvalidArray      = errors.New("invalid PDF array")
	ErrInvalidString     = errors.New("invalid PDF string")
	ErrInvalidName       = errors.New("invalid PDF name")
	ErrInvalidNumber     = errors.New("invalid PDF number")
)

// LengthResolver resolves an indirect stream /Length to its integer value.
type LengthResolver func(ref Reference) (int64, bool)

// Parser parses PDF objects from an in-memory byte slice.
type Parser struct {
	data []byte
	pos  int

	// ResolveLength is consulted when a stream's /Length is an indirect
	// reference. When nil or unresolvable, the parser scans for "endstream".
	ResolveLength LengthResolver
}

// NewParser creates a parser positioned at the start of data.
func NewParser(data []byte) *Parser {
	return &Parser{data: data}
}

// NewParserAt creates a parser positioned at offset.
func NewParserAt(data []byte, offset int64) *Parser {
	return &Parser{data: data, pos: int(offset)}
}

// Pos returns the current read position.
func (p *Parser) Pos() int64 {
	return int64(p.pos)
}

// SetPos moves the read position.
func (p *Parser) SetPos(pos int64) {
	p.pos = int(pos)
}

func (p *Parser) eof() bool {
	return p.pos >= len(p.data)
}

func (p *Parser) peek() (byte, bool) {
	if p.eof() {
		return 0, false
	}
	return p.data[p.pos], true
}

func (p *Parser) next() (byte, bool) {
	if p.eof() {
		return 0, false
	}
	b := p.data[p.pos]
	p.pos++
	return b, true
}

// SkipWhitespace skips whitespace and comments.
func (p *Parser) SkipWhitespace() {
	for !p.eof() {
		b := p.data[p.pos]
		switch {
		case IsWhitespace(b):
			p.pos++
		case b == '%':
			for !p.eof() && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
		default:
			return
		}
	}
}

// IsWhitespace returns true if the byte is PDF whitespace.
func IsWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\x00' || b == '\x0c'
}

// IsDelimiter returns true if the byte is a PDF delimiter.
func IsDelimiter(b byte) bool {
	return b == '(' || b == ')' || b == '<' || b == '>' ||
		b == '[' || b == ']' || b == '{' || b == '}' ||
		b == '/' || b == '%'
}

// ReadToken reads a run of regular characters.
func (p *Parser) ReadToken() string {
	p.SkipWhitespace()
	start := p.pos
	for !p.eof() {
		b := p.data[p.pos]
		if IsWhitespace(b) || IsDelimiter(b) {
			break
		}
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// ParseObject parses a direct PDF object. Indirect references are not
// recognised at this level; use ParseObjectOrReference for that.
func (p *Parser) ParseObject() (PdfObject, error) {
	p.SkipWhitespace()

	b, ok := p.peek()
	if !ok {
		return nil, ErrUnexpectedEOF
	}

	switch b {
	case '(':
		return p.parseString()
	case '<':
		return p.parseHexOrDict()
	case '[':
		return p.parseArray()
	case '/':
		return p.parseName()
	case 't', 'f':
		return p.parseBoolean()
	case 'n':
		return p.parseNull()
	default:
		if b == '-' || b == '+' || b == '.' || (b >= '0' && b <= '9') {
			return p.parseNumber()
		}
		return nil, fmt.Errorf("%w: unexpected character '%c' at offset %d", ErrInvalidObject, b, p.pos)
	}
}

func (p *Parser) parseString() (*StringObject, error) {
	p.pos++ // '('

	var buf bytes.Buffer
	depth := 1

	for depth > 0 {
		b, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated string", ErrInvalidString)
		}

		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(b)
			}
		case '\\':
			escaped, ok := p.next()
			if !ok {
				return nil, fmt.Errorf("%w: unterminated escape", ErrInvalidString)
			}
			switch escaped {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if c, ok := p.peek(); ok && c == '\n' {
					p.pos++
				}
			case '\n':
			default:
				if escaped >= '0' && escaped <= '7' {
					val := int(escaped - '0')
					for i := 0; i < 2; i++ {
						c, ok := p.peek()
						if !ok || c < '0' || c > '7' {
							break
						}
						p.pos++
						val = val*8 + int(c-'0')
					}
					buf.WriteByte(byte(val))
				} else {
					buf.WriteByte(escaped)
				}
			}
		default:
			buf.WriteByte(b)
		}
	}

	return &StringObject{Value: buf.Bytes()}, nil
}

func (p *Parser) parseHexOrDict() (PdfObject, error) {
	p.pos++ // '<'
	if b, ok := p.peek(); ok && b == '<' {
		p.pos++
		return p.parseDictionary()
	}
	return p.parseHexString()
}

func (p *Parser) parseHexString() (*StringObject, error) {
	var digits []byte
	for {
		b, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated hex string", ErrInvalidString)
		}
		if b == '>' {
			break
		}
		if IsWhitespace(b) {
			continue
		}
		digits = append(digits, b)
	}

	if len(digits)%2 != 0 {
		digits = append(digits, '0')
	}

	data := make([]byte, len(digits)/2)
	if _, err := hex.Decode(data, digits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidString, err)
	}

	return &StringObject{Value: data, IsHex: true}, nil
}

// parseDictionary parses a dictionary body after "<<" has been consumed.
func (p *Parser) parseDictionary() (*DictionaryObject, error) {
	dict := NewDictionary()

	for {
		p.SkipWhitespace()

		b, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated dictionary", ErrInvalidDictionary)
		}

		if b == '>' {
			p.pos++
			if c, ok := p.next(); !ok || c != '>' {
				return nil, fmt.Errorf("%w: expected '>>'", ErrInvalidDictionary)
			}
			return dict, nil
		}

		key, err := p.parseName()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid key: %v", ErrInvalidDictionary, err)
		}

		value, err := p.ParseObjectOrReference()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid value for /%s: %v", ErrInvalidDictionary, key, err)
		}

		dict.Set(string(key), value)
	}
}

func (p *Parser) parseArray() (ArrayObject, error) {
	p.pos++ // '['

	arr := ArrayObject{}
	for {
		p.SkipWhitespace()

		b, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated array", ErrInvalidArray)
		}
		if b == ']' {
			p.pos++
			return arr, nil
		}

		obj, err := p.ParseObjectOrReference()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArray, err)
		}
		arr = append(arr, obj)
	}
}

func (p *Parser) parseName() (NameObject, error) {
	p.SkipWhitespace()
	if b, ok := p.next(); !ok || b != '/' {
		return "", ErrInvalidName
	}

	var buf bytes.Buffer
	for !p.eof() {
		b := p.data[p.pos]
		if IsWhitespace(b) || IsDelimiter(b) {
			break
		}
		p.pos++

		if b == '#' && p.pos+2 <= len(p.data) {
			val, err := strconv.ParseUint(string(p.data[p.pos:p.pos+2]), 16, 8)
			if err != nil {
				return "", fmt.Errorf("%w: invalid hex escape", ErrInvalidName)
			}
			p.pos += 2
			buf.WriteByte(byte(val))
			continue
		}
		buf.WriteByte(b)
	}

	return NameObject(buf.String()), nil
}

func (p *Parser) parseBoolean() (BooleanObject, error) {
	switch token := p.ReadToken(); token {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected boolean, got '%s'", ErrInvalidObject, token)
	}
}

func (p *Parser) parseNull() (NullObject, error) {
	if token := p.ReadToken(); token != "null" {
		return NullObject{}, fmt.Errorf("%w: expected 'null', got '%s'", ErrInvalidObject, token)
	}
	return NullObject{}, nil
}

func (p *Parser) parseNumber() (PdfObject, error) {
	p.SkipWhitespace()
	start := p.pos
	hasDecimal := false

scan:
	for !p.eof() {
		b := p.data[p.pos]
		switch {
		case b == '.' && !hasDecimal:
			hasDecimal = true
		case (b == '-' || b == '+') && p.pos == start:
		case b >= '0' && b <= '9':
		default:
			break scan
		}
		p.pos++
	}

	str := string(p.data[start:p.pos])
	if str == "" || str == "-" || str == "+" || str == "." {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidNumber, str)
	}

	if hasDecimal {
		val, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
		}
		return RealObject(val), nil
	}

	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
	}
	return IntegerObject(val), nil
}

// ParseObjectOrReference parses an object, recognising "N G R" references.
func (p *Parser) ParseObjectOrReference() (PdfObject, error) {
	p.SkipWhitespace()

	b, ok := p.peek()
	if !ok {
		return nil, ErrUnexpectedEOF
	}
	if b < '0' || b > '9' {
		return p.ParseObject()
	}

	obj, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	objNum, ok := obj.(IntegerObject)
	if !ok {
		return obj, nil
	}

	afterFirst := p.pos
	p.SkipWhitespace()
	if c, ok := p.peek(); !ok || c < '0' || c > '9' {
		p.pos = afterFirst
		return obj, nil
	}

	genObj, err := p.parseNumber()
	genNum, isInt := genObj.(IntegerObject)
	if err != nil || !isInt {
		p.pos = afterFirst
		return obj, nil
	}

	p.SkipWhitespace()
	if c, ok := p.peek(); ok && c == 'R' {
		p.pos++
		return Reference{ObjectNumber: int(objNum), GenerationNumber: int(genNum)}, nil
	}

	p.pos = afterFirst
	return obj, nil
}

// ParseIndirectObject parses "N G obj ... endobj", including stream bodies.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	objNumObj, err := p.parseNumber()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid object number: %v", ErrInvalidObject, err)
	}
	objNum, ok := objNumObj.(IntegerObject)
	if !ok {
		return nil, fmt.Errorf("%w: object number must be integer", ErrInvalidObject)
	}

	genNumObj, err := p.parseNumber()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid generation number: %v", ErrInvalidObject, err)
	}
	genNum, ok := genNumObj.(IntegerObject)
	if !ok {
		return nil, fmt.Errorf("%w: generation number must be integer", ErrInvalidObject)
	}

	if token := p.ReadToken(); token != "obj" {
		return nil, fmt.Errorf("%w: expected 'obj', got '%s'", ErrInvalidObject, token)
	}

	obj, err := p.ParseObjectOrReference()
	if err != nil {
		return nil, err
	}

	p.SkipWhitespace()
	if dict, ok := obj.(*DictionaryObject); ok && bytes.HasPrefix(p.data[p.pos:], []byte("stream")) {
		stream, err := p.parseStreamBody(dict)
		if err != nil {
			return nil, fmt.Errorf("object %d %d: %w", objNum, genNum, err)
		}
		obj = stream
	}

	p.SkipWhitespace()
	if bytes.HasPrefix(p.data[p.pos:], []byte("endobj")) {
		p.pos += len("endobj")
	}

	return NewIndirectObject(int(objNum), int(genNum), obj), nil
}

// parseStreamBody reads the data following the "stream" keyword.
func (p *Parser) parseStreamBody(dict *DictionaryObject) (*StreamObject, error) {
	p.pos += len("stream")
	if b, ok := p.peek(); ok && b == '\r' {
		p.pos++
	}
	if b, ok := p.peek(); ok && b == '\n' {
		p.pos++
	}
	start := p.pos

	length := int64(-1)
	switch l := dict.Get("Length").(type) {
	case IntegerObject:
		length = int64(l)
	case Reference:
		if p.ResolveLength != nil {
			if v, ok := p.ResolveLength(l); ok {
				length = v
			}
		}
	}

	end := start + int(length)
	if length < 0 || end > len(p.data) || !bytes.HasPrefix(bytes.TrimLeft(p.data[end:], " \t\r\n\x00\x0c"), []byte("endstream")) {
		idx := bytes.Index(p.data[start:], []byte("endstream"))
		if idx < 0 {
			return nil, fmt.Errorf("%w: missing endstream", ErrInvalidStream)
		}
		end = start + idx
		// Trailing EOL before endstream belongs to the syntax, not the data.
		if end > start && p.data[end-1] == '\n' {
			end--
		}
		if end > start && p.data[end-1] == '\r' {
			end--
		}
	}

	data := bytes.Clone(p.data[start:end])
	p.pos = end
	p.SkipWhitespace()
	if bytes.HasPrefix(p.data[p.pos:], []byte("endstream")) {
		p.pos += len("endstream")
	}

	return NewStream(dict, data), nil
}
