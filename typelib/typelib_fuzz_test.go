package typelib

import "testing"

func FuzzLoadFromMemory(f *testing.F) {
	if valid, err := sampleBuilder().Bytes(); err == nil {
		f.Add(valid)
		f.Add(valid[:HeaderSize])
	}
	f.Add([]byte(Magic))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		tl, err := LoadFromMemory(data)
		if err != nil {
			return
		}
		// Walk everything reachable; reads must stay in bounds.
		for i := 1; i <= tl.NumEntries(); i++ {
			e, _ := tl.Entry(uint16(i))
			m := tl.Members(e.Offset)
			for j := 0; j < m.Methods.Count && j < 64; j++ {
				tl.CString(tl.U32(m.Methods.At(j) + 8))
			}
			tl.Attributes(e.Offset)
		}
		tl.Dependencies()
		tl.SharedLibraries()
	})
}
