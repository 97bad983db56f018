// Package buildctx assembles the tar build context consumed by the Docker
// Engine image build API.
//
// The context stream has a fixed layout:
//
//	Dockerfile            — rendered by internal/dockerfile
//	src/...               — the application source tree, copied verbatim
//	models/<file>         — the fetched model binary
//
// Source and model live in separate namespaces so the Dockerfile's source
// COPY never duplicates the multi-gigabyte model binary into the
// application layer.
package buildctx

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mmr-tortoise/modelpack/internal/dockerfile"
	"github.com/mmr-tortoise/modelpack/internal/model"
)

// ValidateSourceTree checks that the build context directory exists and is
// a directory. Individual file read failures surface later during tar
// assembly; this preflight exists to produce a clear error before any
// network or daemon work starts.
func ValidateSourceTree(contextDir string) error {
	info, err := os.Stat(contextDir)
	if err != nil {
		if os.IsNotExist(err) {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("build context directory not found: %s", contextDir), err)
		}
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to read build context directory %s", contextDir), err)
	}
	if !info.IsDir() {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("build context %s is not a directory", contextDir))
	}
	return nil
}

// Assemble writes the complete build context tar stream to w.
//
// The source tree is copied verbatim — no filtering, no transformation.
// Any unreadable file aborts the assembly, which in turn aborts the build
// (copy failures are fatal, like every other pipeline failure).
func Assemble(w io.Writer, contextDir string, dockerfileBytes []byte, modelLocalPath, modelFileName string) error {
	tw := tar.NewWriter(w)

	if err := writeBytes(tw, dockerfile.FileName, dockerfileBytes); err != nil {
		return fmt.Errorf("failed to add Dockerfile to build context: %w", err)
	}

	if err := writeTree(tw, contextDir, dockerfile.SourceDir); err != nil {
		return fmt.Errorf("failed to add source tree to build context: %w", err)
	}

	modelName := dockerfile.ModelsDir + "/" + modelFileName
	if err := writeFile(tw, modelLocalPath, modelName); err != nil {
		return fmt.Errorf("failed to add model artifact to build context: %w", err)
	}

	return tw.Close()
}

// writeBytes adds an in-memory file to the tar stream. A fixed zero
// modification time keeps the context bytes reproducible across rebuilds
// with identical inputs.
func writeBytes(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Unix(0, 0),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// writeFile streams a file from disk into the tar under the given name.
func writeFile(tw *tar.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	_, err = io.Copy(tw, file)
	return err
}

// writeTree walks the directory rooted at dir and adds every entry to the
// tar under the given namespace prefix. Regular files, directories, and
// symlinks are carried; other entry types (sockets, devices) are skipped
// since the Docker builder cannot consume them anyway.
func writeTree(tw *tar.Writer, dir, prefix string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		// Tar names always use forward slashes regardless of host OS.
		name := prefix + "/" + filepath.ToSlash(rel)

		switch {
		case info.Mode().IsDir():
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = name + "/"
			return tw.WriteHeader(hdr)

		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, target)
			if err != nil {
				return err
			}
			hdr.Name = name
			return tw.WriteHeader(hdr)

		case info.Mode().IsRegular():
			return writeFile(tw, path, name)

		default:
			return nil
		}
	})
}
