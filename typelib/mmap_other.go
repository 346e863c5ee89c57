//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package typelib

import "os"

func mapFile(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, nil, nil
}
