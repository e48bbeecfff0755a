package ingest

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// Authentication failures. Each is fatal to the one ingest call that raised
// it and is never retried automatically.
var (
	ErrUnauthorizedSender = errors.New("ingest: unauthorized sender")
	ErrInvalidOrigin      = errors.New("ingest: origin id mismatch")
	ErrInvalidOwner       = errors.New("ingest: origin owner mismatch")
	ErrInvalidName        = errors.New("ingest: origin name mismatch")
	ErrBadMetadata        = errors.New("ingest: bad report metadata")
)

// Metadata layout: three contiguous fields, no internal length prefixes. The
// transport supplies the outer length.
const (
	originIDLen   = 32
	originNameLen = 10
	ownerLen      = 20
	// MetadataLen is the exact size of the packed metadata blob.
	MetadataLen = originIDLen + originNameLen + ownerLen
)

// Metadata identifies the workflow that produced a report.
type Metadata struct {
	OriginID   common.Hash
	OriginName [originNameLen]byte
	Owner      common.Address
}

// DecodeMetadata unpacks the 62-byte metadata blob.
func DecodeMetadata(raw []byte) (Metadata, error) {
	if len(raw) != MetadataLen {
		return Metadata{}, fmt.Errorf("%w: want %d bytes, got %d", ErrBadMetadata, MetadataLen, len(raw))
	}

	var md Metadata
	copy(md.OriginID[:], raw[:originIDLen])
	copy(md.OriginName[:], raw[originIDLen:originIDLen+originNameLen])
	md.Owner = common.BytesToAddress(raw[originIDLen+originNameLen:])
	return md, nil
}

// Encode packs the metadata back into its wire form.
func (m Metadata) Encode() []byte {
	out := make([]byte, 0, MetadataLen)
	out = append(out, m.OriginID[:]...)
	out = append(out, m.OriginName[:]...)
	out = append(out, m.Owner.Bytes()...)
	return out
}

// NameDigest derives the 10-byte wire form of a human-readable origin name.
// The derivation is pure: the same name always yields the same digest.
func NameDigest(name string) [originNameLen]byte {
	var digest [originNameLen]byte
	copy(digest[:], crypto.Keccak256([]byte(name)))
	return digest
}

// Authenticator validates the origin of an inbound report before it may
// reach the rule store. Each predicate is optional and independent; an unset
// predicate (nil) checks nothing. With no predicates configured every call is
// accepted, which is a deliberately permissive demo default.
type Authenticator struct {
	trustedSender *common.Address
	originID      *common.Hash
	originOwner   *common.Address
	originName    *[originNameLen]byte
	logger        zerolog.Logger
}

// AuthenticatorOptions carry the optional predicate values. Optionality is
// expressed with pointers, never zero-value sentinels, so a legitimately
// zero-valued identity still participates in checking.
type AuthenticatorOptions struct {
	TrustedSender *common.Address
	OriginID      *common.Hash
	OriginOwner   *common.Address
	OriginName    *[originNameLen]byte
}

// NewAuthenticator constructs the report authenticator.
func NewAuthenticator(opts AuthenticatorOptions, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		trustedSender: opts.TrustedSender,
		originID:      opts.OriginID,
		originOwner:   opts.OriginOwner,
		originName:    opts.OriginName,
		logger:        logger.With().Str("component", "report_auth").Logger(),
	}
}

// Open reports whether no predicates are configured at all.
func (a *Authenticator) Open() bool {
	return a.trustedSender == nil && a.originID == nil && a.originOwner == nil && a.originName == nil
}

// Authenticate applies the configured predicates in fixed order: the sender
// check runs before any metadata byte is inspected, then origin id, owner,
// and name. The metadata blob is only decoded when at least one origin
// predicate is configured.
func (a *Authenticator) Authenticate(sender common.Address, metadata []byte) error {
	if a.trustedSender != nil && sender != *a.trustedSender {
		return fmt.Errorf("%w: %s", ErrUnauthorizedSender, sender.Hex())
	}

	if a.originID == nil && a.originOwner == nil && a.originName == nil {
		return nil
	}

	md, err := DecodeMetadata(metadata)
	if err != nil {
		return err
	}

	if a.originID != nil && md.OriginID != *a.originID {
		return fmt.Errorf("%w: %s", ErrInvalidOrigin, md.OriginID.Hex())
	}
	if a.originOwner != nil && md.Owner != *a.originOwner {
		return fmt.Errorf("%w: %s", ErrInvalidOwner, md.Owner.Hex())
	}
	if a.originName != nil && md.OriginName != *a.originName {
		return fmt.Errorf("%w: %x", ErrInvalidName, md.OriginName)
	}

	return nil
}
