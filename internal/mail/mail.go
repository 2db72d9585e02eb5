package mail

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Identity is the composite key of one message: account user, folder, UID.
// UIDs are server-assigned, per-folder and monotonically non-decreasing;
// they mean nothing outside their folder.
type Identity struct {
	User string
	Box  string
	UID  uint32
}

// NewIdentity builds an identity from a full account address and folder name.
// The domain part of the account is dropped, and spaces in the folder name
// are replaced so the folder can appear inside generated storage names.
func NewIdentity(account, box string, uid uint32) Identity {
	return Identity{
		User: AccountUser(account),
		Box:  BoxName(box),
		UID:  uid,
	}
}

// BoxName returns the folder name in the form every record and storage
// name uses, with spaces escaped. Queries against recorded state must use
// this form, not the raw folder name.
func BoxName(folder string) string {
	return strings.ReplaceAll(folder, " ", "&nbsp")
}

// AccountUser returns the account address with the domain part dropped,
// the form every record and storage name uses.
func AccountUser(account string) string {
	user, _, _ := strings.Cut(account, "@")
	return user
}

// Artifact is one stored blob: the message body or a single attachment.
type Artifact struct {
	// Fogname is the generated collision-resistant storage name.
	Fogname string
	// OriginalName is the attachment's original filename; empty for the body.
	OriginalName string
	Data         []byte
}

// Message is one fetched and parsed mail, ready for persistence.
type Message struct {
	Identity

	Subject string
	Sender  string
	// Recipients and CarbonCopies are ';'-delimited address lists.
	Recipients   string
	CarbonCopies string
	SendTime     time.Time
	RecvTime     time.Time

	Body        Artifact
	Attachments []Artifact
}

// Artifacts returns the body followed by all attachments.
func (m *Message) Artifacts() []Artifact {
	out := make([]Artifact, 0, len(m.Attachments)+1)
	out = append(out, m.Body)
	out = append(out, m.Attachments...)
	return out
}

// BodyFogname is the storage name of a message body.
func BodyFogname(id Identity) string {
	return fmt.Sprintf("%s_%s_%d.context", id.User, id.Box, id.UID)
}

// AttachmentFogname is the storage name of one attachment: the identity
// plus a short content-name hash, keeping the original extension so the
// stored object stays recognizable.
func AttachmentFogname(id Identity, filename string) string {
	sum := md5.Sum([]byte(filename))
	return fmt.Sprintf("%s_%s_%d_%s%s",
		id.User, id.Box, id.UID,
		hex.EncodeToString(sum[:])[:5],
		fileExtension(filename))
}

// fileExtension returns the filename's extension, the whole name for bare
// dotfiles, or ".unknown" when there is no extension at all.
func fileExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ".unknown"
	}
	return ext
}
