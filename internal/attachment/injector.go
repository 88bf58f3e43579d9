// Package attachment embeds client file attachments into the last user turn.
package attachment

import (
	"encoding/base64"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fzzzy/aguitest/internal/domain"
)

var dataURLPattern = regexp.MustCompile(`^data:([^;]+);base64,(.+)`)

// ParseDataURL splits a base64 data URL into media type and payload.
func ParseDataURL(dataURL string) (mediaType, payload string, ok bool) {
	m := dataURLPattern.FindStringSubmatch(dataURL)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Inject rewrites the last user message of messages so that it carries the
// given attachments as content parts. It returns the attachments that were
// actually added, in input order. Malformed data URLs are skipped.
func Inject(messages []domain.ChatMessage, attachments domain.Attachments) domain.Attachments {
	if len(attachments) == 0 {
		return nil
	}

	last := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return nil
	}

	msg := &messages[last]
	var parts []domain.ContentPart
	var added domain.Attachments

	for _, att := range attachments {
		part, err := toPart(att)
		if err != nil {
			log.Printf("WARN: skipping attachment: %v", err)
			continue
		}
		if parts == nil {
			parts = initialParts(msg.Content)
		}
		parts = append(parts, part)
		added = append(added, att)
	}

	if len(added) > 0 {
		msg.Content = domain.Content{Parts: parts}
	}
	return added
}

func initialParts(c domain.Content) []domain.ContentPart {
	if c.IsParts() {
		return append([]domain.ContentPart{}, c.Parts...)
	}
	return []domain.ContentPart{{Type: domain.PartTypeText, Text: c.Text}}
}

func toPart(att domain.Attachment) (domain.ContentPart, error) {
	mediaType, payload, ok := ParseDataURL(att.DataURL)
	if !ok {
		return domain.ContentPart{}, &domain.MalformedAttachmentError{Filename: att.Filename, Reason: "not a base64 data URL"}
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return domain.ContentPart{
			Type:     domain.PartTypeBinary,
			MimeType: mediaType,
			Data:     payload,
			Filename: att.Filename,
		}, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return domain.ContentPart{}, &domain.MalformedAttachmentError{Filename: att.Filename, Reason: err.Error()}
	}
	if !utf8.Valid(decoded) {
		return domain.ContentPart{}, &domain.MalformedAttachmentError{Filename: att.Filename, Reason: "text attachment is not valid UTF-8"}
	}
	return domain.ContentPart{
		Type: domain.PartTypeText,
		Text: fmt.Sprintf("<file-attachment name=\"%s\">\n%s\n</file-attachment>", att.Filename, decoded),
	}, nil
}
