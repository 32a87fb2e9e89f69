package registry

import "testing"

type fakeFileService struct{}

func (fakeFileService) ReadFile(string) ([]byte, error)       { return nil, nil }
func (fakeFileService) WriteFile(string, []byte) error        { return nil }
func (fakeFileService) AppendFile(string, []byte) error       { return nil }

func TestResolveTypedKeyReturnsConcreteType(t *testing.T) {
	reg := NewServiceRegistry("development")
	key := NewKey[FileService]("file")
	_ = reg.Register(key.Name, fakeFileService{}, RegisterOptions{})

	fs, err := Resolve(reg, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := fs.(FileService); !ok {
		t.Error("expected resolved value to satisfy FileService")
	}
}

func TestResolveTypedKeyFailsOnTypeMismatch(t *testing.T) {
	reg := NewServiceRegistry("development")
	key := NewKey[FileService]("file")
	_ = reg.Register(key.Name, "not a file service", RegisterOptions{})

	if _, err := Resolve(reg, key); err == nil {
		t.Fatal("expected type-mismatch error")
	}
}
