package parser

import (
	"bytes"
	"errors"
	"io"
	"mime"
	stdmail "net/mail"
	"regexp"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"
)

// MaxBodyChars bounds the stored body size. Longer bodies are cut and marked.
const MaxBodyChars = 100000

// TruncationMarker is appended to bodies cut at MaxBodyChars.
const TruncationMarker = "[Message truncated due to size]"

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// ParsedMessage is the normalized view of one inbound email.
type ParsedMessage struct {
	From       string // lowercase, trimmed
	FromName   string
	Subject    string
	MessageID  string // normalized, no angle brackets
	InReplyTo  string
	References []string
	Body       string
	BodyIsHTML bool
}

// ReferenceIDs returns in-reply-to plus references, deduplicated, for the
// message-id matching strategy.
func (m *ParsedMessage) ReferenceIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	add(m.InReplyTo)
	for _, ref := range m.References {
		add(ref)
	}
	return ids
}

// Parser turns raw MIME blobs into ParsedMessages.
type Parser struct {
	decoder *mime.WordDecoder
}

// New returns a ready Parser.
func New() *Parser {
	return &Parser{decoder: &mime.WordDecoder{}}
}

var fromAddressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Parse extracts sender, subject, threading headers, and the best body
// candidate from a raw message. Structured parsing is attempted first; a
// net/mail fallback covers messages go-message rejects.
func (p *Parser) Parse(raw []byte) (*ParsedMessage, error) {
	if len(raw) == 0 {
		return nil, errors.New("parser: empty message")
	}

	msg := &ParsedMessage{}
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return p.legacyParse(raw)
	}

	header := &reader.Header
	msg.Subject = p.subjectFromHeader(header)
	msg.From, msg.FromName = p.fromHeader(header)
	msg.MessageID = NormalizeMessageID(header.Get("Message-Id"))
	msg.InReplyTo = firstMessageID(header.Get("In-Reply-To"))
	msg.References = parseMessageIDs(strings.Join(header.Values("References"), " "))

	msg.Body, msg.BodyIsHTML = p.readBody(reader)
	if msg.Body == "" {
		if legacy, lerr := p.legacyParse(raw); lerr == nil {
			msg.Body = legacy.Body
			msg.BodyIsHTML = legacy.BodyIsHTML
			if msg.From == "" {
				msg.From, msg.FromName = legacy.From, legacy.FromName
			}
			if msg.Subject == "" {
				msg.Subject = legacy.Subject
			}
		}
	}

	finalizeBody(msg)
	if msg.From == "" {
		return nil, errors.New("parser: no sender address")
	}
	return msg, nil
}

func (p *Parser) legacyParse(raw []byte) (*ParsedMessage, error) {
	reader, err := stdmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.New("parser: malformed message")
	}
	msg := &ParsedMessage{}
	msg.Subject = p.decodeHeader(reader.Header.Get("Subject"))
	msg.From, msg.FromName = p.parseAddress(reader.Header.Get("From"))
	msg.MessageID = NormalizeMessageID(reader.Header.Get("Message-Id"))
	msg.InReplyTo = firstMessageID(reader.Header.Get("In-Reply-To"))
	msg.References = parseMessageIDs(reader.Header.Get("References"))

	ct := reader.Header.Get("Content-Type")
	if mediaType, _, merr := mime.ParseMediaType(ct); merr == nil {
		msg.BodyIsHTML = strings.HasPrefix(strings.ToLower(mediaType), "text/html")
	}
	body, rerr := io.ReadAll(io.LimitReader(reader.Body, MaxBodyChars+1))
	if rerr == nil {
		msg.Body = string(body)
	}

	finalizeBody(msg)
	if msg.From == "" {
		return nil, errors.New("parser: no sender address")
	}
	return msg, nil
}

// readBody walks the MIME parts and picks the best body: HTML preferred,
// plain text as fallback.
func (p *Parser) readBody(reader *gomail.Reader) (string, bool) {
	var plain, html string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}
		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, cterr := header.ContentType()
		if cterr != nil {
			mediaType = "text/plain"
		}
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))

		data, rerr := io.ReadAll(io.LimitReader(part.Body, MaxBodyChars+1))
		if rerr != nil || len(data) == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(mediaType, "text/html"):
			if html == "" {
				html = string(data)
			}
		case strings.HasPrefix(mediaType, "text/plain"):
			if plain == "" {
				plain = string(data)
			}
		default:
			if plain == "" && html == "" {
				plain = string(data)
			}
		}
	}
	if html != "" {
		return html, true
	}
	return plain, false
}

func (p *Parser) subjectFromHeader(header *gomail.Header) string {
	if subject, err := header.Subject(); err == nil {
		return strings.TrimSpace(subject)
	}
	return p.decodeHeader(header.Get("Subject"))
}

func (p *Parser) fromHeader(header *gomail.Header) (string, string) {
	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		addr := strings.ToLower(strings.TrimSpace(list[0].Address))
		return addr, strings.TrimSpace(list[0].Name)
	}
	return p.parseAddress(header.Get("From"))
}

// parseAddress handles both "Name <email>" and bare-email From headers,
// falling back to a regex scan over the raw value.
func (p *Parser) parseAddress(value string) (string, string) {
	value = p.decodeHeader(value)
	if value == "" {
		return "", ""
	}
	if addr, err := stdmail.ParseAddress(value); err == nil {
		return strings.ToLower(strings.TrimSpace(addr.Address)), strings.TrimSpace(addr.Name)
	}
	if match := fromAddressPattern.FindString(value); match != "" {
		name := strings.TrimSpace(strings.Split(value, "<")[0])
		name = strings.Trim(name, `" `)
		return strings.ToLower(match), name
	}
	return "", ""
}

func (p *Parser) decodeHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || p.decoder == nil {
		return value
	}
	decoded, err := p.decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func finalizeBody(msg *ParsedMessage) {
	body := strings.ReplaceAll(msg.Body, "\r", "")
	if len(body) > MaxBodyChars {
		body = body[:MaxBodyChars] + TruncationMarker
	}
	msg.Body = body
}

var messageIDPattern = regexp.MustCompile(`<([^<>]+)>`)

// NormalizeMessageID strips angle brackets, quotes, and whitespace so ids
// compare equal regardless of header formatting.
func NormalizeMessageID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.Trim(value, "<>")
	value = strings.Trim(value, `"`)
	return strings.TrimSpace(value)
}

func firstMessageID(raw string) string {
	ids := parseMessageIDs(raw)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func parseMessageIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	matches := messageIDPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		if id := NormalizeMessageID(raw); id != "" {
			return []string{id}
		}
		return nil
	}
	var ids []string
	for _, match := range matches {
		if id := NormalizeMessageID(match[1]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

var subjectPrefixPattern = regexp.MustCompile(`^(?i)\s*(re|fwd?|fw)\s*:\s*`)

// StripSubjectPrefixes removes leading Re:/Fwd:/Fw: prefixes, repeatedly and
// case-insensitively. Idempotent.
func StripSubjectPrefixes(subject string) string {
	subject = strings.TrimSpace(subject)
	for {
		stripped := subjectPrefixPattern.ReplaceAllString(subject, "")
		if stripped == subject {
			return subject
		}
		subject = strings.TrimSpace(stripped)
	}
}
