package util

import "testing"

func TestNormalizeCaseName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "Chroma Case", want: "chromacase"},
		{name: "punctuation", input: "Operation Breakout Weapon Case", want: "operationbreakoutweaponcase"},
		{name: "digits kept", input: "Chroma 2 Case", want: "chroma2case"},
		{name: "symbols and accents dropped", input: "CS:GO Weapon Case #3 – Café", want: "csgoweaponcase3caf"},
		{name: "empty", input: "", want: ""},
		{name: "only symbols", input: "!!! ---", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeCaseName(tc.input); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeCaseNameIdempotent(t *testing.T) {
	inputs := []string{"Chroma Case", "  Prisma 2 Case ", "Ünïcödé Ⅻ Case", " Dreams & Nightmares Case", ""}
	for _, in := range inputs {
		once := NormalizeCaseName(in)
		if twice := NormalizeCaseName(once); twice != once {
			t.Fatalf("not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestNormalizeCaseNameCollisionsMatch(t *testing.T) {
	if NormalizeCaseName("Chroma Case") != NormalizeCaseName("chroma-case") {
		t.Fatal("expected differently formatted names to share a key")
	}
}

func TestCleanName(t *testing.T) {
	if got := CleanName("  Chroma  \n Case "); got != "Chroma Case" {
		t.Fatalf("got %q", got)
	}
}
