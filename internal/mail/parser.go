package mail

import (
	"bytes"
	"fmt"
	nmail "net/mail"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

var receivedCleaner = regexp.MustCompile(`[\r\t\n]`)

// Parse converts raw RFC 822 message bytes into a Message for the given
// account, folder and UID.
func Parse(account, box string, uid uint32, raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	id := NewIdentity(account, box, uid)
	sendTime, recvTime := extractTimes(env)

	msg := &Message{
		Identity:     id,
		Subject:      env.GetHeader("Subject"),
		Sender:       extractSender(env),
		Recipients:   extractAddressList(env, "To"),
		CarbonCopies: extractAddressList(env, "Cc"),
		SendTime:     sendTime,
		RecvTime:     recvTime,
		Body: Artifact{
			Fogname: BodyFogname(id),
			Data:    bodyContent(env),
		},
	}

	for _, part := range append(env.Attachments, env.Inlines...) {
		if part.FileName == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, Artifact{
			Fogname:      AttachmentFogname(id, part.FileName),
			OriginalName: part.FileName,
			Data:         part.Content,
		})
	}

	return msg, nil
}

// extractSender returns the addr-spec of the From header.
func extractSender(env *enmime.Envelope) string {
	from := env.GetHeader("From")
	if from == "" {
		return ""
	}
	addr, err := nmail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}

// extractAddressList returns the ';'-joined addr-specs of an address header.
func extractAddressList(env *enmime.Envelope, header string) string {
	value := env.GetHeader(header)
	if value == "" {
		return ""
	}

	addrs, err := nmail.ParseAddressList(value)
	if err != nil {
		// Malformed lists still carry usable addresses; fall back to a
		// per-entry parse and keep what we can.
		var kept []string
		for _, entry := range strings.Split(value, ",") {
			if addr, addrErr := nmail.ParseAddress(strings.TrimSpace(entry)); addrErr == nil {
				kept = append(kept, addr.Address)
			}
		}
		return strings.Join(kept, ";")
	}

	specs := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		specs = append(specs, addr.Address)
	}
	return strings.Join(specs, ";")
}

// extractTimes derives the send and receive timestamps from the Received
// trace headers: the earliest hop is the send time, the latest the receive
// time. Messages without a usable trace fall back to the Date header for
// both.
func extractTimes(env *enmime.Envelope) (time.Time, time.Time) {
	var stamps []time.Time
	for _, received := range env.Root.Header.Values("Received") {
		parts := strings.Split(received, ";")
		candidate := receivedCleaner.ReplaceAllString(strings.TrimSpace(parts[len(parts)-1]), "")
		if t, err := nmail.ParseDate(candidate); err == nil {
			stamps = append(stamps, t)
		}
	}

	if len(stamps) > 0 {
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
		return stamps[0], stamps[len(stamps)-1]
	}

	if t, err := nmail.ParseDate(env.GetHeader("Date")); err == nil {
		return t, t
	}
	return time.Time{}, time.Time{}
}

// bodyContent concatenates the text and HTML parts of the message body.
func bodyContent(env *enmime.Envelope) []byte {
	var buf bytes.Buffer
	buf.WriteString(env.Text)
	buf.WriteString(env.HTML)
	return buf.Bytes()
}
