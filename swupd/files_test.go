package swupd

import "testing"

func TestTypeFromFlag(t *testing.T) {
	testCases := []struct {
		flag     byte
		expected Ftype
	}{
		{'F', TypeFile},
		{'D', TypeDirectory},
		{'L', TypeLink},
		{'M', TypeManifest},
		{'.', TypeUnset},
	}

	for _, tc := range testCases {
		t.Run(string(tc.flag), func(t *testing.T) {
			got, err := typeFromFlag(tc.flag)
			if err != nil {
				t.Fatalf("failed to parse %v type flag: %s", tc.flag, err)
			}
			if got != tc.expected {
				t.Errorf("typeFromFlag(%v) = %v, want %v", tc.flag, got, tc.expected)
			}
		})
	}

	if _, err := typeFromFlag(' '); err == nil {
		t.Error("typeFromFlag did not fail with invalid input")
	}
}

func TestStatusFromFlag(t *testing.T) {
	testCases := []struct {
		flag     byte
		expected Fstatus
	}{
		{'d', StatusDeleted},
		{'g', StatusGhosted},
		{'.', StatusUnset},
	}

	for _, tc := range testCases {
		t.Run(string(tc.flag), func(t *testing.T) {
			got, err := statusFromFlag(tc.flag)
			if err != nil {
				t.Fatalf("failed to parse %v status flag: %s", tc.flag, err)
			}
			if got != tc.expected {
				t.Errorf("statusFromFlag(%v) = %v, want %v", tc.flag, got, tc.expected)
			}
		})
	}

	if _, err := statusFromFlag(' '); err == nil {
		t.Error("statusFromFlag did not fail with invalid input")
	}
}

func TestModifierFromFlag(t *testing.T) {
	testCases := []struct {
		flag     byte
		expected Fmodifier
	}{
		{'.', ModifierUnset},
		{'C', ModifierConfig},
		{'s', ModifierState},
		{'b', ModifierBoot},
	}

	for _, tc := range testCases {
		t.Run(string(tc.flag), func(t *testing.T) {
			got, err := modifierFromFlag(tc.flag)
			if err != nil {
				t.Fatalf("failed to parse %v modifier flag: %s", tc.flag, err)
			}
			if got != tc.expected {
				t.Errorf("modifierFromFlag(%v) = %v, want %v", tc.flag, got, tc.expected)
			}
		})
	}

	if _, err := modifierFromFlag(' '); err == nil {
		t.Error("modifierFromFlag did not fail with invalid input")
	}
}

func TestRenameFromFlag(t *testing.T) {
	testCases := []struct {
		flag     byte
		expected Frename
	}{
		{'r', RenameSet},
		{'.', RenameUnset},
	}

	for _, tc := range testCases {
		t.Run(string(tc.flag), func(t *testing.T) {
			got, err := renameFromFlag(tc.flag)
			if err != nil {
				t.Fatalf("failed to parse %v rename flag: %s", tc.flag, err)
			}
			if got != tc.expected {
				t.Errorf("renameFromFlag(%v) = %v, want %v", tc.flag, got, tc.expected)
			}
		})
	}

	if _, err := renameFromFlag(' '); err == nil {
		t.Error("renameFromFlag did not fail with invalid input")
	}
}

func TestSetFlags(t *testing.T) {
	flagsValid := []string{"F...", "F.C.", "F..r", "D.b.", ".d.r", ".d..", ".gb.", ".gsr"}

	for _, flags := range flagsValid {
		t.Run(flags, func(t *testing.T) {
			f := File{}
			if err := f.setFlags(flags); err != nil {
				t.Errorf("failed to set flags %v on file: %s", flags, err)
			}
		})
	}

	flagsInvalid := []string{" ...", ". ..", ".. .", "... ", "..."}

	for _, flags := range flagsInvalid {
		t.Run(flags, func(t *testing.T) {
			f := File{}
			if err := f.setFlags(flags); err == nil {
				t.Error("setFlags did not fail with invalid input")
			}
		})
	}
}

func TestGetFlagString(t *testing.T) {
	f := File{}
	if err := f.setFlags("F.Cr"); err != nil {
		t.Fatal(err)
	}

	flags, err := f.GetFlagString()
	if err != nil {
		t.Fatal(err)
	}
	if flags != "F.Cr" {
		t.Errorf("GetFlagString() = %q, want %q", flags, "F.Cr")
	}
}

func TestGetFlagStringNoFlagsSet(t *testing.T) {
	f := File{}
	if _, err := f.GetFlagString(); err == nil {
		t.Error("GetFlagString did not raise an error when no flags are set")
	}
}

func TestFindFileNameInSlice(t *testing.T) {
	fs := []*File{{Name: "1"}, {Name: "2"}, {Name: "3"}}

	testCases := []struct {
		name     string
		hasMatch bool
	}{
		{"1", true},
		{"2", true},
		{"4", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := File{Name: tc.name}
			found := f.findFileNameInSlice(fs)
			if tc.hasMatch && (found == nil || found.Name != tc.name) {
				t.Errorf("expected to find %v in slice, got %v", tc.name, found)
			}
			if !tc.hasMatch && found != nil {
				t.Errorf("expected no match for %v, got %v", tc.name, found.Name)
			}
		})
	}
}

func TestSameFile(t *testing.T) {
	a := &File{Name: "/a", Hash: 1, Type: TypeFile, Status: StatusUnset, Modifier: ModifierConfig}
	b := &File{Name: "/a", Hash: 1, Type: TypeFile, Status: StatusUnset, Modifier: ModifierConfig}
	c := &File{Name: "/a", Hash: 2, Type: TypeFile, Status: StatusUnset, Modifier: ModifierConfig}

	if !sameFile(a, b) {
		t.Error("expected identical file records to be considered the same")
	}
	if sameFile(a, c) {
		t.Error("expected files with differing hashes to be considered different")
	}
}

func TestPresentAndIsDeleted(t *testing.T) {
	present := File{Status: StatusUnset}
	if !present.Present() || present.IsDeleted() {
		t.Error("a file with StatusUnset should be Present and not IsDeleted")
	}

	deleted := File{Status: StatusDeleted}
	if deleted.Present() || !deleted.IsDeleted() {
		t.Error("a file with StatusDeleted should not be Present and should be IsDeleted")
	}

	ghosted := File{Status: StatusGhosted}
	if ghosted.Present() {
		t.Error("a ghosted file should not be Present")
	}
}

func TestIsUnsupportedTypeChange(t *testing.T) {
	testCases := []struct {
		name     string
		file     File
		expected bool
	}{
		{
			"no delta peer",
			File{Status: StatusUnset, Type: TypeFile},
			false,
		},
		{
			"same type",
			File{Status: StatusUnset, Type: TypeFile, DeltaPeer: &File{Status: StatusUnset, Type: TypeFile}},
			false,
		},
		{
			"file to link is fine",
			File{Status: StatusUnset, Type: TypeLink, DeltaPeer: &File{Status: StatusUnset, Type: TypeFile}},
			false,
		},
		{
			"link to directory is fine",
			File{Status: StatusUnset, Type: TypeDirectory, DeltaPeer: &File{Status: StatusUnset, Type: TypeLink}},
			false,
		},
		{
			"deleted entries never flag a type change",
			File{Status: StatusDeleted, Type: TypeFile, DeltaPeer: &File{Status: StatusUnset, Type: TypeDirectory}},
			false,
		},
		{
			"directory to file is unsupported",
			File{Status: StatusUnset, Type: TypeFile, DeltaPeer: &File{Status: StatusUnset, Type: TypeDirectory}},
			true,
		},
		{
			"directory to link is unsupported",
			File{Status: StatusUnset, Type: TypeLink, DeltaPeer: &File{Status: StatusUnset, Type: TypeDirectory}},
			true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.file.isUnsupportedTypeChange(); got != tc.expected {
				t.Errorf("isUnsupportedTypeChange() = %v, want %v", got, tc.expected)
			}
		})
	}
}
