package ingest

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testMetadata() Metadata {
	return Metadata{
		OriginID:   common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		OriginName: NameDigest("price-alert-workflow"),
		Owner:      common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
}

func TestAuthenticateOpenByDefault(t *testing.T) {
	auth := NewAuthenticator(AuthenticatorOptions{}, noopLogger())
	if !auth.Open() {
		t.Fatal("authenticator with no predicates must report open")
	}

	sender := common.HexToAddress("0x9999999999999999999999999999999999999999")
	if err := auth.Authenticate(sender, nil); err != nil {
		t.Fatalf("open authenticator must accept any call, even without metadata: %v", err)
	}
	if err := auth.Authenticate(sender, []byte{0x01}); err != nil {
		t.Fatalf("open authenticator must ignore malformed metadata: %v", err)
	}
}

func TestAuthenticateSenderPredicate(t *testing.T) {
	trusted := common.HexToAddress("0x1111111111111111111111111111111111111111")
	auth := NewAuthenticator(AuthenticatorOptions{TrustedSender: &trusted}, noopLogger())

	if err := auth.Authenticate(trusted, nil); err != nil {
		t.Fatalf("trusted sender must pass: %v", err)
	}

	intruder := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if err := auth.Authenticate(intruder, nil); !errors.Is(err, ErrUnauthorizedSender) {
		t.Fatalf("expected ErrUnauthorizedSender, got %v", err)
	}
}

func TestAuthenticateSenderCheckedBeforeMetadata(t *testing.T) {
	trusted := common.HexToAddress("0x1111111111111111111111111111111111111111")
	originID := testMetadata().OriginID
	auth := NewAuthenticator(AuthenticatorOptions{TrustedSender: &trusted, OriginID: &originID}, noopLogger())

	// Metadata is garbage, but the sender check must fire first.
	intruder := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if err := auth.Authenticate(intruder, []byte{0xde, 0xad}); !errors.Is(err, ErrUnauthorizedSender) {
		t.Fatalf("expected ErrUnauthorizedSender before metadata decode, got %v", err)
	}
}

func TestAuthenticateOriginPredicates(t *testing.T) {
	md := testMetadata()
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")

	cases := []struct {
		name    string
		opts    AuthenticatorOptions
		mutate  func(*Metadata)
		wantErr error
	}{
		{
			name:    "origin id mismatch",
			opts:    AuthenticatorOptions{OriginID: &md.OriginID},
			mutate:  func(m *Metadata) { m.OriginID[0] ^= 0xff },
			wantErr: ErrInvalidOrigin,
		},
		{
			name:    "owner mismatch",
			opts:    AuthenticatorOptions{OriginOwner: &md.Owner},
			mutate:  func(m *Metadata) { m.Owner[0] ^= 0xff },
			wantErr: ErrInvalidOwner,
		},
		{
			name:    "name mismatch",
			opts:    AuthenticatorOptions{OriginName: &md.OriginName},
			mutate:  func(m *Metadata) { m.OriginName = NameDigest("someone-else") },
			wantErr: ErrInvalidName,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := NewAuthenticator(tc.opts, noopLogger())

			if err := auth.Authenticate(sender, md.Encode()); err != nil {
				t.Fatalf("matching metadata must pass: %v", err)
			}

			bad := md
			tc.mutate(&bad)
			if err := auth.Authenticate(sender, bad.Encode()); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAuthenticateBadMetadataLength(t *testing.T) {
	md := testMetadata()
	auth := NewAuthenticator(AuthenticatorOptions{OriginID: &md.OriginID}, noopLogger())

	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if err := auth.Authenticate(sender, md.Encode()[:MetadataLen-1]); !errors.Is(err, ErrBadMetadata) {
		t.Fatalf("expected ErrBadMetadata for short blob, got %v", err)
	}
}

func TestNameDigestDeterministic(t *testing.T) {
	first := NameDigest("price-alert-workflow")
	second := NameDigest("price-alert-workflow")
	if first != second {
		t.Fatal("name digest must be reproducible")
	}
	if first == NameDigest("another-workflow") {
		t.Fatal("different names must yield different digests")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	md := testMetadata()
	decoded, err := DecodeMetadata(md.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != md {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, md)
	}
}
