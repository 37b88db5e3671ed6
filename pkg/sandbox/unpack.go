package sandbox

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the 4-byte frame magic number every zstd stream starts
// with (RFC 8878 §3.1.1), used to distinguish a tar/zstd archive from
// tar/gzip without relying on the attachment's file name.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Unpack extracts a gzip- or zstd-compressed tar archive (the two shapes
// a Function's attachments are published in) rooted at destGuestDir, a
// guest-visible path materialised through Map. The compression is
// detected from the stream's leading magic bytes rather than the
// archive's file name. Every archive member is re-validated through Map
// so a crafted archive cannot write outside the sandbox.
func (s *Sandbox) Unpack(archiveHostPath, destGuestDir string) error {
	f, err := os.Open(archiveHostPath)
	if err != nil {
		return fmt.Errorf("sandbox: open archive: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return fmt.Errorf("sandbox: read archive header: %w", err)
	}

	var decompressed io.Reader
	if len(magic) == 4 && string(magic) == string(zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return fmt.Errorf("sandbox: zstd reader: %w", err)
		}
		defer zr.Close()
		decompressed = zr
	} else {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("sandbox: gzip reader: %w", err)
		}
		defer gz.Close()
		decompressed = gz
	}

	tr := tar.NewReader(decompressed)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sandbox: read tar header: %w", err)
		}

		guestPath := filepath.Join(destGuestDir, filepath.Clean("/"+hdr.Name))
		hostPath, err := s.Map(guestPath)
		if err != nil {
			return fmt.Errorf("sandbox: unpack member %q: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(hostPath, 0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(hostPath), 0700); err != nil {
				return err
			}
			out, err := os.OpenFile(hostPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0700|0600)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		default:
			// symlinks, devices, etc: not valid inside a sandboxed attachment
			if strings.TrimSpace(hdr.Name) != "" {
				continue
			}
		}
	}
}
