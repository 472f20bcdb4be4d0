package acquire

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/openpgp"
)

// SignatureItem is the detached ASCII-armored signature published next to an archive.
type SignatureItem struct {
	Archive ArchiveItem
}

func (i SignatureItem) DownloadURI() string {
	return i.Archive.URL + ".asc"
}

func (i SignatureItem) DestFile(dir string) string {
	return i.Archive.DestFile(dir) + ".asc"
}

// Verifier checks archives against a keyring of trusted signers.
type Verifier struct {
	keyring openpgp.EntityList
}

// LoadKeyring reads an armored or binary keyring.
func LoadKeyring(path string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error opening keyring: %w", err)
	}
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse keyring %s: %w", path, err)
	}
	return &Verifier{keyring: keyring}, nil
}

// NewVerifier trusts the given entities.
func NewVerifier(keyring openpgp.EntityList) *Verifier {
	return &Verifier{keyring: keyring}
}

// Verify checks the detached signature of file.
func (v *Verifier) Verify(file, signature string) (*openpgp.Entity, error) {
	signed, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer signed.Close()
	sig, err := os.Open(signature)
	if err != nil {
		return nil, err
	}
	defer sig.Close()

	return openpgp.CheckArmoredDetachedSignature(v.keyring, signed, sig)
}

// FetchVerified downloads the archive and, when a verifier is set, its
// signature, then checks the signature matches.
func (a *Acquirer) FetchVerified(ctx context.Context, item ArchiveItem, v *Verifier) (string, bool, error) {
	path, skipped, err := a.Fetch(ctx, item)
	if err != nil || v == nil {
		return path, skipped, err
	}

	sigItem := SignatureItem{Archive: item}
	sigPath, _, err := a.Fetch(ctx, sigItem)
	if err != nil {
		return "", skipped, err
	}
	signer, err := v.Verify(path, sigPath)
	if err != nil {
		a.logger.Error("Signature verification failed", "path", path, "err", err)
		return "", skipped, &DownloadError{URL: item.URL, Err: fmt.Errorf("invalid signature: %w", err)}
	}
	a.logger.Info("Good signature", "path", path, "key", signer.PrimaryKey.KeyIdString())
	return path, skipped, nil
}
