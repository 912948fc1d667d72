package model

import "time"

// Blob is the ledger record for one content-addressed object.
// This is a pure domain model with no database-specific dependencies or tags.
type Blob struct {
	Hash        string    `json:"sha256"`
	Size        int64     `json:"size"`
	ContentType string    `json:"type"`
	CreatedAt   time.Time `json:"uploaded"`
}

// BlobDescriptor is the caller-facing view of a committed blob, including the
// identities that own it. Ownership is many-to-many: the same content-addressed
// blob may be owned by any number of identities.
type BlobDescriptor struct {
	Hash        string    `json:"sha256"`
	Size        int64     `json:"size"`
	ContentType string    `json:"type"`
	UploadedAt  time.Time `json:"uploaded"`
	Owners      []string  `json:"owners"`
	URL         string    `json:"url,omitempty"`
}

// Descriptor builds a BlobDescriptor from a ledger record and its owner set.
func (b *Blob) Descriptor(owners []string, url string) *BlobDescriptor {
	return &BlobDescriptor{
		Hash:        b.Hash,
		Size:        b.Size,
		ContentType: b.ContentType,
		UploadedAt:  b.CreatedAt,
		Owners:      owners,
		URL:         url,
	}
}
