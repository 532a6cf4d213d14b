package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESClient is the subset of *sesv2.Client used by SESGateway.
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESGateway delivers books as raw MIME messages with the book attached.
type SESGateway struct {
	client SESClient
	from   string
}

// NewSESGateway creates a gateway backed by an SES v2 client built from cfg.
func NewSESGateway(cfg aws.Config, from string) (*SESGateway, error) {
	return NewSESGatewayWithClient(sesv2.NewFromConfig(cfg), from)
}

// NewSESGatewayWithClient creates a gateway around an existing client.
func NewSESGatewayWithClient(client SESClient, from string) (*SESGateway, error) {
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("ses sender address is not set")
	}
	return &SESGateway{client: client, from: from}, nil
}

// Send reads the attachment and sends it to msg.To.
func (g *SESGateway) Send(ctx context.Context, msg Message) (string, error) {
	data, err := os.ReadFile(msg.File.Path)
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}

	raw, err := buildRawMessage(g.from, msg, data)
	if err != nil {
		return "", fmt.Errorf("build message: %w", err)
	}

	out, err := g.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(g.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Subject returns the subject line used for a delivery.
func Subject(title string) string {
	return "Your book: " + title
}

func buildRawMessage(from string, msg Message, attachment []byte) ([]byte, error) {
	// Header values are written verbatim, so the recipient must be a bare address.
	if addr, err := mail.ParseAddress(msg.To); err != nil || addr.Address != msg.To {
		return nil, fmt.Errorf("invalid recipient address %q", msg.To)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", Subject(msg.Title)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s\r\n\r\n",
		mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": mw.Boundary()}))

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(text, "%s is attached.\r\n", msg.Title); err != nil {
		return nil, err
	}

	contentType := msg.File.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": msg.File.Name})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": msg.File.Name})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64Lines(part, attachment); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// base64LineLen is the RFC 2045 line limit for encoded bodies.
const base64LineLen = 76

func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(base64LineLen, len(encoded))
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
