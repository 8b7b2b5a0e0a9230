package names

import (
	"reflect"
	"testing"
)

func TestToNominative_KnownCases(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Станіслава Мерляна", "Станіслав Мерлян"},
		{"Андрія Коваля", "Андрій Коваль"},
		{"Петра Шевченка", "Петро Шевченко"},
		{"Павла Бондаря", "Павло Бондар"},
		{"Олени Ковальської", "Олена Ковальська"},
		{"Марії Іванової", "Марія Іванова"},
		{"Івана Білого", "Іван Білий"},
		{"Мерляна", "Мерлян"},
	}
	for _, tc := range cases {
		if got := ToNominative(tc.in); got != tc.want {
			t.Errorf("ToNominative(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestToNominative_UnmatchedUnchanged(t *testing.T) {
	cases := []string{
		"Олег Шевченко",           // no genitive suffix on either token
		"Іван Петрович Сидоренко", // three tokens are ambiguous
		"john smith", // lower-case tokens are not names
		"",
		"Ян",
	}
	for _, in := range cases {
		if got := ToNominative(in); got != in {
			t.Errorf("ToNominative(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestToNominative_NeverStripsToInitial(t *testing.T) {
	if got := ToNominative("Оля"); got != "Оля" {
		t.Errorf("expected short token unchanged, got %q", got)
	}
}

func TestSplit_EditingPhrase(t *testing.T) {
	got := Split("Іван Петренко (Київ) в редакції Станіслава Мерляна.")
	want := []string{"Іван Петренко", "Станіслава Мерляна"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %q, want %q", got, want)
	}
}

func TestSplitNames_Separators(t *testing.T) {
	got := SplitNames("Іван Петренко (Львів), Олена Коваль; Петро Сірко та Ігор Бойко і Ганна Мельник.")
	want := []string{"Іван Петренко", "Олена Коваль", "Петро Сірко", "Ігор Бойко", "Ганна Мельник"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitNames = %q, want %q", got, want)
	}
}

func TestNormalize_MainAuthorKeptOthersConverted(t *testing.T) {
	got := Normalize("Олена Коваль в редакції Станіслава Мерляна")
	want := []string{"Олена Коваль", "Станіслав Мерлян"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalize_LeadingIdeaPhrase(t *testing.T) {
	got := Normalize("Ідея Андрія Коваля")
	want := []string{"Андрій Коваль"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalize_EnglishPhrases(t *testing.T) {
	got := Normalize("John Smith, Jane Doe edited by Mary Major")
	want := []string{"John Smith", "Jane Doe", "Mary Major"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalize_Dedupes(t *testing.T) {
	got := Normalize("Іван Петренко, Іван Петренко")
	if len(got) != 1 {
		t.Errorf("expected duplicates removed, got %q", got)
	}
}

func TestNormalize_Empty(t *testing.T) {
	if got := Normalize("  "); len(got) != 0 {
		t.Errorf("expected no names, got %q", got)
	}
}
