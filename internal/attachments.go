package internal

import (
	"net/url"
	"path"
	"strings"
)

// DefaultUsersCollectionID is the well-known id of the auth users collection
const DefaultUsersCollectionID = "_pb_users_auth_"

// AttachmentKind says how a stored file should be rendered
type AttachmentKind int

const (
	// AttachmentGeneric is rendered as a link
	AttachmentGeneric AttachmentKind = iota
	// AttachmentImage is rendered inline
	AttachmentImage
)

func (k AttachmentKind) String() string {
	if k == AttachmentImage {
		return "image"
	}
	return "file"
}

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
	".svg":  {},
	".avif": {},
}

// ClassifyAttachment classifies a stored filename by extension
func ClassifyAttachment(filename string) AttachmentKind {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := imageExtensions[ext]; ok {
		return AttachmentImage
	}
	return AttachmentGeneric
}

// AttachmentResolver builds file URLs for message attachments and avatars
type AttachmentResolver struct {
	baseURL           string
	usersCollectionID string
}

// NewAttachmentResolver creates a resolver for the backend at baseURL
func NewAttachmentResolver(baseURL, usersCollectionID string) *AttachmentResolver {
	if usersCollectionID == "" {
		usersCollectionID = DefaultUsersCollectionID
	}
	return &AttachmentResolver{
		baseURL:           strings.TrimRight(baseURL, "/"),
		usersCollectionID: usersCollectionID,
	}
}

// FileURL composes <base>/api/files/<collection>/<record>/<filename>
func (r *AttachmentResolver) FileURL(collectionID, recordID, filename string) string {
	return r.baseURL + "/api/files/" +
		url.PathEscape(collectionID) + "/" +
		url.PathEscape(recordID) + "/" +
		url.PathEscape(filename)
}

// MessageURL returns the URL of the message's first attachment
func (r *AttachmentResolver) MessageURL(m Message) (string, bool) {
	if !m.HasAttachment() || m.CollectionID == "" {
		return "", false
	}
	return r.FileURL(m.CollectionID, m.ID, m.Attachments[0]), true
}

// AttachmentURLs returns URLs for every attachment of the message
func (r *AttachmentResolver) AttachmentURLs(m Message) []string {
	if m.CollectionID == "" {
		return nil
	}
	var urls []string
	for _, name := range m.Attachments {
		if name != "" {
			urls = append(urls, r.FileURL(m.CollectionID, m.ID, name))
		}
	}
	return urls
}

// AvatarURL returns the URL of the user's avatar
func (r *AttachmentResolver) AvatarURL(u User) (string, bool) {
	if u.Avatar == "" {
		return "", false
	}
	return r.FileURL(r.usersCollectionID, u.ID, u.Avatar), true
}
