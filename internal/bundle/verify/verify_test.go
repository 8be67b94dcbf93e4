package verify

import (
	"archive/zip"
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/hoppscotch/agent/internal/bundle"
	"github.com/hoppscotch/agent/internal/cryptoprim"
	"github.com/hoppscotch/agent/internal/relayerr"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func manifestFor(files map[string]string) []bundle.FileEntry {
	var entries []bundle.FileEntry
	for name, content := range files {
		sum := cryptoprim.Hash256([]byte(content))
		entries = append(entries, bundle.FileEntry{
			Path: name,
			Size: int64(len(content)),
			Hash: hex.EncodeToString(sum[:]),
		})
	}
	return entries
}

func TestVerifySucceedsOnValidArchive(t *testing.T) {
	files := map[string]string{"index.html": "<html></html>", "app.js": "console.log(1)"}
	archive := buildArchive(t, files)

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sig := ed25519.Sign(priv, archive)

	metadata := bundle.Metadata{Version: "1.0.0", Signature: sig, Manifest: manifestFor(files)}
	verified, err := Verify(archive, metadata, pub)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if string(verified.Files["index.html"]) != files["index.html"] {
		t.Fatalf("unexpected content for index.html")
	}
	if len(verified.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(verified.Files))
	}
}

func TestVerifyFailsOnBadSignature(t *testing.T) {
	files := map[string]string{"index.html": "<html></html>"}
	archive := buildArchive(t, files)

	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	metadata := bundle.Metadata{Signature: make([]byte, 64), Manifest: manifestFor(files)}

	_, err = Verify(archive, metadata, pub)
	re, ok := relayerr.As(err)
	if !ok || re.Kind != relayerr.KindInvalidSignature {
		t.Fatalf("expected KindInvalidSignature, got %v", err)
	}
}

func TestVerifyFailsOnTamperedFile(t *testing.T) {
	files := map[string]string{"index.html": "<html></html>"}
	manifest := manifestFor(files)
	archive := buildArchive(t, map[string]string{"index.html": "<html>tampered</html>"})

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sig := ed25519.Sign(priv, archive)
	metadata := bundle.Metadata{Signature: sig, Manifest: manifest}

	_, err = Verify(archive, metadata, pub)
	re, ok := relayerr.As(err)
	if !ok || re.Kind != relayerr.KindInvalidHash {
		t.Fatalf("expected KindInvalidHash, got %v", err)
	}
}

func TestVerifyRejectsShortPublicKey(t *testing.T) {
	archive := buildArchive(t, map[string]string{"index.html": "x"})
	_, err := Verify(archive, bundle.Metadata{}, []byte{1, 2, 3})
	re, ok := relayerr.As(err)
	if !ok || re.Kind != relayerr.KindInvalidKeyLength {
		t.Fatalf("expected KindInvalidKeyLength, got %v", err)
	}
}

func TestTrustSkipsSignatureAndHashChecks(t *testing.T) {
	files := map[string]string{"index.html": "<html></html>"}
	archive := buildArchive(t, files)
	metadata := bundle.Metadata{Manifest: manifestFor(files)}

	verified, err := Trust(archive, metadata)
	if err != nil {
		t.Fatalf("Trust: %v", err)
	}
	if string(verified.Files["index.html"]) != files["index.html"] {
		t.Fatalf("unexpected content")
	}
}

func TestVerifyFailsOnMissingManifestFile(t *testing.T) {
	archive := buildArchive(t, map[string]string{"index.html": "x"})
	manifest := []bundle.FileEntry{{Path: "missing.js", Size: 1, Hash: "ab"}}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sig := ed25519.Sign(priv, archive)
	metadata := bundle.Metadata{Signature: sig, Manifest: manifest}

	_, err = Verify(archive, metadata, pub)
	re, ok := relayerr.As(err)
	if !ok || re.Kind != relayerr.KindParse {
		t.Fatalf("expected KindParse, got %v", err)
	}
}
