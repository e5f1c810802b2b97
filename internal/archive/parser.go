package archive

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/xaenox/cforum-migrate/internal/models"
)

const (
	messageIDPrefix = "m"
	userNameFlag    = "UserName"
)

// Parser converts the XML of one archived thread file into a models.Thread.
type Parser struct {
	location *time.Location
}

// NewParser returns a parser that places message dates in loc.
// A nil loc means time.Local.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{location: loc}
}

type xmlForum struct {
	XMLName xml.Name   `xml:"Forum"`
	Thread  *xmlThread `xml:"Thread"`
}

type xmlThread struct {
	ID       *string      `xml:"id,attr"`
	Messages []xmlMessage `xml:"Message"`
}

type xmlMessage struct {
	ID         string       `xml:"id,attr"`
	VotingGood string       `xml:"votingGood,attr"`
	VotingBad  string       `xml:"votingBad,attr"`
	Invisible  string       `xml:"invisible,attr"`
	Header     xmlHeader    `xml:"Header"`
	Content    *textNode    `xml:"MessageContent"`
	Replies    []xmlMessage `xml:"Message"`
}

type xmlHeader struct {
	Author   xmlAuthor `xml:"Author"`
	Category *textNode `xml:"Category"`
	Subject  *textNode `xml:"Subject"`
	Date     *xmlDate  `xml:"Date"`
	Flags    []xmlFlag `xml:"Flags>Flag"`
}

type xmlAuthor struct {
	Name     *textNode `xml:"Name"`
	Email    *textNode `xml:"Email"`
	Homepage *textNode `xml:"HomepageUrl"`
}

type xmlDate struct {
	LongSec *string `xml:"longSec,attr"`
}

type xmlFlag struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// textNode collects all character data below an element, like the DOM
// textContent property.
type textNode struct {
	text string
}

func (n *textNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}
	n.text = b.String()
	return nil
}

func (n *textNode) String() string {
	if n == nil {
		return ""
	}
	return n.text
}

// Parse decodes one thread document. Any failure, including a message
// without a required field, is returned as a *ParseError and no partial
// thread is produced. Archived and ID are left for the caller.
func (p *Parser) Parse(data []byte) (*models.Thread, error) {
	var doc xmlForum

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("decode xml: %w", err)}
	}
	if err := drain(dec); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("decode xml: %w", err)}
	}

	if doc.Thread == nil {
		return nil, &ParseError{Err: errors.New("missing Thread element")}
	}
	if doc.Thread.ID == nil {
		return nil, &ParseError{Err: errors.New("missing thread id attribute")}
	}
	if len(doc.Thread.Messages) == 0 {
		return nil, &ParseError{Err: errors.New("thread has no messages")}
	}

	thread := &models.Thread{
		TID:      *doc.Thread.ID,
		Messages: make([]models.Message, 0, len(doc.Thread.Messages)),
	}
	for i := range doc.Thread.Messages {
		msg, err := p.message(&doc.Thread.Messages[i])
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		thread.Messages = append(thread.Messages, msg)
	}

	return thread, nil
}

func (p *Parser) message(x *xmlMessage) (models.Message, error) {
	if err := validateMessage(x); err != nil {
		return models.Message{}, err
	}

	sec, err := strconv.ParseInt(strings.TrimSpace(*x.Header.Date.LongSec), 10, 64)
	if err != nil {
		return models.Message{}, &ValidationError{
			MessageID: x.ID,
			Err:       fmt.Errorf("invalid date: %w", err),
		}
	}

	invisible := "no"
	if x.Invisible == "1" {
		invisible = "yes"
	}

	msg := models.Message{
		ID: strings.TrimPrefix(x.ID, messageIDPrefix),
		Author: models.Author{
			Name:     x.Header.Author.Name.String(),
			Email:    x.Header.Author.Email.String(),
			Homepage: x.Header.Author.Homepage.String(),
		},
		Subject:  x.Header.Subject.String(),
		Date:     time.Unix(sec, 0).In(p.location),
		Category: x.Header.Category.String(),
		Flags: map[string]string{
			models.FlagVotingGood: x.VotingGood,
			models.FlagVotingBad:  x.VotingBad,
			models.FlagInvisible:  invisible,
		},
		Content:  NormalizeContent(x.Content.String()),
		Messages: make([]models.Message, 0, len(x.Replies)),
	}

	for _, f := range x.Header.Flags {
		if f.Name == userNameFlag {
			msg.Author.Username = f.Value
			continue
		}
		msg.Flags[f.Name] = f.Value
	}

	for i := range x.Replies {
		reply, err := p.message(&x.Replies[i])
		if err != nil {
			return models.Message{}, err
		}
		msg.Messages = append(msg.Messages, reply)
	}

	return msg, nil
}

func validateMessage(x *xmlMessage) error {
	h := &x.Header
	err := validation.Errors{
		"author.name": validation.Validate(h.Author.Name, validation.NotNil),
		"subject":     validation.Validate(h.Subject, validation.NotNil),
		"date":        validation.Validate(h.Date, validation.NotNil),
		"content":     validation.Validate(x.Content, validation.NotNil),
	}.Filter()
	if err == nil {
		err = validation.Errors{
			"date.longSec": validation.Validate(h.Date.LongSec, validation.NotNil),
		}.Filter()
	}
	if err != nil {
		return &ValidationError{MessageID: x.ID, Err: err}
	}
	return nil
}

// drain consumes the rest of the document so trailing garbage after the
// root element is reported.
func drain(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after root", t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return errors.New("unexpected text after root element")
			}
		}
	}
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q is not supported", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
