package artifact

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// TypeDefinitionExt 打包的声明文件扩展名
const TypeDefinitionExt = ".d.ts"

// PackTypeDefinitions 把 dir 下所有声明文件打成 tar.gz
// 条目按路径顺序写入且不带修改时间，相同内容得到相同字节
func PackTypeDefinitions(dir string) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	count := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), TypeDefinitionExt) {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		header := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     filepath.ToSlash(rel),
			Mode:     0644,
			Size:     int64(len(content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if _, err := tw.Write(content); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pack type definitions in %s failed", dir)
	}
	if count == 0 {
		return nil, errors.Errorf("no %s files found in %s", TypeDefinitionExt, dir)
	}

	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "tar close failed")
	}
	if err := gw.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip close failed")
	}
	return buf.Bytes(), nil
}

// UnpackTypeDefinitions 解压到 dst，返回写入的相对路径
func UnpackTypeDefinitions(blob []byte, dst string) ([]string, error) {
	gr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, errors.Wrap(err, "gzip.NewReader failed")
	}
	defer gr.Close()

	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return nil, errors.Wrap(err, "filepath.Abs failed")
	}

	var names []string
	tr := tar.NewReader(gr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "tar.Next failed")
		}

		// 验证目标路径安全
		targetAbs := filepath.Join(dstAbs, filepath.FromSlash(header.Name))
		if targetAbs != dstAbs && !strings.HasPrefix(targetAbs, dstAbs+string(filepath.Separator)) {
			return nil, errors.Errorf("unsafe extraction path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetAbs, 0755); err != nil {
				return nil, errors.Wrapf(err, "mkdir %s failed", targetAbs)
			}
		case tar.TypeReg:
			if err := writeFile(targetAbs, tr); err != nil {
				return nil, err
			}
			names = append(names, header.Name)
		default:
			return nil, errors.Errorf("unsupported file type: %v in %s", header.Typeflag, header.Name)
		}
	}
	return names, nil
}

func writeFile(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, "mkdir %s failed", filepath.Dir(target))
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "open %s failed", target)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return errors.Wrapf(err, "write %s failed", target)
	}
	return nil
}
