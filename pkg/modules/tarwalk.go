package modules

import (
	"archive/tar"
	"io"
)

// handler of tar entry.
//
// args:
//   - header: header of tar entry
//   - payload: `io.Reader` points the content of the tar entry.
//   - err: error happens when get a tar entry. err is never `io.EOF`.
//
// return:
//
//	any error which caused in a handler. It stops walking.
type TarWalker func(header *tar.Header, payload io.Reader, err error) error

// TarWalk traverses entries of a tar stream.
//
// It does not close from.
func TarWalk(from io.Reader, walker TarWalker) error {
	tarin := tar.NewReader(from)
	for {
		header, err := tarin.Next()
		if err == io.EOF {
			return nil
		}
		if werr := walker(header, tarin, err); werr != nil {
			return werr
		}
		if err != nil {
			// broken stream never proceeds.
			return err
		}
	}
}
