package imagewriter

import (
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-bootimage/internal/signing"
)

// Sign authenticates a checksummed image: it reads the whole file back,
// computes the SHA-384 digest, signs it with the P-384 key, stores digest
// and signature in the header, and rewrites the header so the signature is
// persisted. The digest is computed while the on-disk signature block is
// still all zero; the verifier reproduces that state before hashing.
func (w *Writer) Sign(signer *signing.Signer) error {
	if w.state != StateChecksummed {
		return fmt.Errorf("cannot sign image in %s state", w.state)
	}

	if _, err := w.sink.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to image start: %w", err)
	}
	image := make([]byte, w.header.ImageLength)
	if _, err := io.ReadFull(w.sink, image); err != nil {
		return fmt.Errorf("read back image for signing: %w", err)
	}

	digest := sha512.Sum384(image)
	w.header.Signature.Digest = digest

	sig, err := signer.Sign(digest[:])
	if err != nil {
		return err
	}
	w.header.Signature.ECDSASig = sig

	if err := w.rewriteHeader(); err != nil {
		return err
	}
	w.state = StateSigned
	return nil
}
