package pdfextract

import "testing"

func TestValidateTextRejectsShortText(t *testing.T) {
	if ValidateText("too short") {
		t.Error("expected short text to fail validation")
	}
}

func TestValidateTextRejectsLowLetterRatio(t *testing.T) {
	text := "1111111111 2222222222 3333333333 4444444444 5555555555 6666666666 7777777777 8888888888 9999999999 0000000000 garbage"
	if ValidateText(text) {
		t.Error("expected low-letter-ratio text to fail validation")
	}
}

func TestValidateTextRejectsMissingVocabulary(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog near the river every single morning while birds sing softly in the distant trees and clouds drift slowly across the pale blue sky above the quiet valley where nothing official ever seems to happen at all during these long peaceful afternoons"
	if ValidateText(text) {
		t.Error("expected vocabulary-free text to fail validation")
	}
}

func TestValidateTextAcceptsRealisticAgendaText(t *testing.T) {
	text := `City Council Regular Meeting Agenda. The Council will hold a public hearing
	on the proposed ordinance amending the budget resolution. Staff recommends approval
	of the consent calendar item regarding the district committee minutes from the prior
	session. A motion to approve the board's recommendation will be presented for vote
	during the commission meeting following public comment on county matters.`
	if !ValidateText(text) {
		t.Error("expected realistic agenda text to pass validation")
	}
}

func TestValidateTextRejectsManySingleCharWords(t *testing.T) {
	words := "council agenda meeting city county board commission public ordinance resolution "
	for i := 0; i < 30; i++ {
		words += "a b c d "
	}
	if ValidateText(words) {
		t.Error("expected text dominated by single-char words to fail validation")
	}
}

func TestNormalizeCollapsesWhitespaceAndFixesArtifacts(t *testing.T) {
	input := "Hello|World\n\n\n\nFoo   Bar‚ Baz"
	got := normalize(input)
	if got != "HelloIWorld\n\nFoo Bar, Baz" {
		t.Errorf("unexpected normalize output: %q", got)
	}
}
