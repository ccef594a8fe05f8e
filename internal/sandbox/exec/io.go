package exec

import (
	"encoding/binary"
	"os"

	"go.trai.ch/zerr"
)

func writeByte(f *os.File, b byte) error {
	_, err := f.Write([]byte{b})
	return err
}

func readByte(f *os.File) (byte, error) {
	var buf [1]byte
	if _, err := f.Read(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeInt32(f *os.File, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := f.Write(buf[:])
	return err
}

func readInt32(f *os.File) (int32, error) {
	var buf [4]byte
	if _, err := readFull(f, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, zerr.Wrap(err, "short read on control socket")
		}
	}
	return total, nil
}
