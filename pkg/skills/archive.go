package skills

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moonmind/moonmind/pkg/errors"
)

var (
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
	gzipMagic = []byte{0x1f, 0x8b}
)

// extractArchive unpacks a zip or tar.gz bundle into dest, detected by magic
// bytes. Members that are absolute, traverse upward, escape dest, or are
// anything other than plain files and directories are rejected.
func extractArchive(path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.NewMaterialization(errors.CodeBundleFetchFailed,
			fmt.Sprintf("cannot open bundle: %v", err))
	}
	defer f.Close()

	magic := make([]byte, 4)
	n, err := io.ReadFull(f, magic)
	if err != nil && n < 2 {
		return errors.NewMaterialization(errors.CodeUnsupportedBundle,
			"bundle is too short to identify")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	switch {
	case n >= 4 && string(magic[:4]) == string(zipMagic):
		return extractZip(path, dest)
	case n >= 2 && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1]:
		return extractTarGz(f, dest)
	default:
		return errors.NewMaterialization(errors.CodeUnsupportedBundle,
			"bundle is neither a zip nor a gzipped tar")
	}
}

// safeMemberPath validates one archive member name and returns its
// extraction target under dest.
func safeMemberPath(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || strings.HasPrefix(filepath.ToSlash(name), "/") {
		return "", errors.NewMaterialization(errors.CodeUnsafeBundleMember,
			fmt.Sprintf("member %q has an absolute path", name))
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", errors.NewMaterialization(errors.CodeUnsafeBundleMember,
			fmt.Sprintf("member %q traverses outside the bundle", name))
	}
	target := filepath.Join(dest, clean)
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", errors.NewMaterialization(errors.CodeUnsafeBundleMember,
			fmt.Sprintf("member %q escapes the extraction root", name))
	}
	return target, nil
}

func extractZip(path, dest string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return errors.NewMaterialization(errors.CodeUnsupportedBundle,
			fmt.Sprintf("cannot read zip bundle: %v", err))
	}
	defer r.Close()

	for _, member := range r.File {
		mode := member.Mode()
		if mode&fs.ModeSymlink != 0 || mode&fs.ModeDevice != 0 ||
			mode&fs.ModeNamedPipe != 0 || mode&fs.ModeSocket != 0 {
			return errors.NewMaterialization(errors.CodeUnsafeBundleMember,
				fmt.Sprintf("member %q is not a plain file or directory", member.Name))
		}
		target, err := safeMemberPath(dest, member.Name)
		if err != nil {
			return err
		}
		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := writeZipMember(member, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipMember(member *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func extractTarGz(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errors.NewMaterialization(errors.CodeUnsupportedBundle,
			fmt.Sprintf("cannot read gzip bundle: %v", err))
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewMaterialization(errors.CodeUnsupportedBundle,
				fmt.Sprintf("cannot read tar bundle: %v", err))
		}

		switch header.Typeflag {
		case tar.TypeDir, tar.TypeReg:
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
			continue
		default:
			return errors.NewMaterialization(errors.CodeUnsafeBundleMember,
				fmt.Sprintf("member %q is not a plain file or directory", header.Name))
		}

		target, err := safeMemberPath(dest, header.Name)
		if err != nil {
			return err
		}
		if header.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, tr); err != nil {
			dst.Close()
			return err
		}
		if err := dst.Close(); err != nil {
			return err
		}
	}
}
