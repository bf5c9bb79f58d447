// Package editor builds the session configuration handed to the external document
// editor.
package editor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"docbridge/internal/rbac"
)

// Intent is what the caller wants to do in the session.
type Intent string

const (
	IntentEdit   Intent = "edit"
	IntentReview Intent = "review"
)

const (
	ModeEdit   = "edit"
	ModeReview = "review"

	FileTypeDOCX = "docx"
	GuestName    = "Guest"
	CallbackPath = "/api/onlyoffice/callback"
)

// ParseIntent maps free-form input onto an Intent, defaulting to review.
func ParseIntent(value string) Intent {
	if strings.EqualFold(strings.TrimSpace(value), string(IntentEdit)) {
		return IntentEdit
	}
	return IntentReview
}

type Document struct {
	ID    string
	Key   string
	Title string
	URL   string
}

// User is the authenticated caller. A nil *User is an anonymous guest.
type User struct {
	ID   string
	Name string
	Role string
}

type Permissions struct {
	Edit    bool `json:"edit"`
	Review  bool `json:"review"`
	Comment bool `json:"comment"`
}

type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SessionConfig describes one editing session. It is immutable once issued;
// any change requires a new config and a new token.
type SessionConfig struct {
	DocumentID       string      `json:"documentId"`
	DocumentKey      string      `json:"documentKey"`
	DocumentTitle    string      `json:"documentTitle"`
	DocumentURL      string      `json:"documentUrl"`
	FileType         string      `json:"fileType"`
	Mode             string      `json:"mode"`
	Permissions      Permissions `json:"permissions"`
	ReviewerIdentity Identity    `json:"reviewerIdentity"`
	CallbackURL      string      `json:"callbackUrl"`
	TrackChanges     bool        `json:"trackChanges"`
}

type Options struct {
	// CallbackBaseURL is the public origin of this service.
	CallbackBaseURL string
	// NewID generates guest ids; defaults to uuid.NewString.
	NewID func() string
}

// BuildConfig resolves the session config for a document and caller. Authenticated
// callers are capped by their role; guests may review and comment.
func BuildConfig(doc Document, user *User, intent Intent, opts Options) SessionConfig {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	identity := Identity{ID: newID(), Name: GuestName}
	role := rbac.RoleCommenter
	if user != nil {
		identity = Identity{ID: user.ID, Name: user.Name}
		if identity.Name == "" {
			identity.Name = GuestName
		}
		if identity.ID == "" {
			identity.ID = newID()
		}
		role = rbac.Normalize(user.Role)
	}

	if intent == IntentEdit && !rbac.Can(role, rbac.ActionEdit) {
		intent = IntentReview
	}

	cfg := SessionConfig{
		DocumentID:       doc.ID,
		DocumentKey:      doc.Key,
		DocumentTitle:    doc.Title,
		DocumentURL:      doc.URL,
		FileType:         FileTypeDOCX,
		ReviewerIdentity: identity,
		CallbackURL:      strings.TrimRight(opts.CallbackBaseURL, "/") + CallbackPath,
		TrackChanges:     true,
	}
	if cfg.DocumentKey == "" {
		cfg.DocumentKey = doc.ID
	}

	switch intent {
	case IntentEdit:
		cfg.Mode = ModeEdit
		cfg.Permissions = Permissions{Edit: true, Review: true, Comment: true}
	default:
		cfg.Mode = ModeReview
		cfg.Permissions = Permissions{
			Review:  rbac.Can(role, rbac.ActionReview),
			Comment: rbac.Can(role, rbac.ActionComment),
		}
	}
	return cfg
}

// Fingerprint is a stable digest of the config. A token issued for one fingerprint
// must not be reused for a config with another.
func (c SessionConfig) Fingerprint() string {
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
