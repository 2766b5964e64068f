package archive

import (
	"io"

	"github.com/klauspost/compress/zip"
)

type ZIPArchiveFile struct {
	*zip.File
}

func (za *ZIPArchiveFile) Name() string {
	return za.File.Name
}

func (za *ZIPArchiveFile) IsRegular() bool {
	return !za.File.FileInfo().IsDir()
}

func (za *ZIPArchiveFile) Compressed() bool {
	return za.File.Method != zip.Store
}

func (za *ZIPArchiveFile) Open() (io.ReadCloser, error) {
	if za.File.FileHeader.Flags&0x1 == 1 {
		return nil, &ArchiveError{p: za.File.Name, Err: ErrEncrypted}
	}

	r, err := za.File.Open()
	if err != nil {
		return nil, &ArchiveError{p: za.File.Name, Err: err}
	}

	return r, nil
}

type ZIPArchiveReader struct {
	*zip.Reader
}

func (za *ZIPArchiveReader) Walk(fn WalkFunc) error {
	for _, f := range za.Reader.File {
		if err := fn(&ZIPArchiveFile{f}); err != nil {
			return err
		}
	}

	return nil
}

func (za *ZIPArchiveReader) Close() error {
	return nil
}

func NewZipArchiveReader(br io.ReaderAt, size int64) (*ZIPArchiveReader, error) {
	r2, err := zip.NewReader(br, size)
	if err != nil {
		return nil, err
	}

	return &ZIPArchiveReader{r2}, nil
}
