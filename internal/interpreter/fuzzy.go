package interpreter

import (
	"strings"
	"unicode/utf8"
)

// maxSuggestDistance is the largest edit distance still offered as a
// "did you mean" suggestion.
const maxSuggestDistance = 2

// KnownCommands is the verb vocabulary used for suggestions.
var KnownCommands = []string{
	"help", "clear", "cat", "ls", "history", "cd", "wget", "mail", "sudo",
	"matrix", "neofetch", "tree", "man", "fortune", "theme", "mute", "unmute",
	"alias", "unalias", "fullscreen", "fs", "exit", "hack", "rm",
}

// completions is the full-command vocabulary offered by Autocomplete, in
// presentation order.
var completions = []string{
	"help", "clear", "neofetch", "matrix", "tree", "fortune",
	"fullscreen", "fs", "mute", "unmute", "alias", "exit",
	"cat ./identity.txt", "cat ./about.md", "cat ./skills.json",
	"cat ./achievements.log", "ls -la ./projects/", "history --work",
	"./send_message.sh", "wget cv", "theme green", "theme amber",
	"theme cyan", "theme white", "man cat", "man theme", "man alias",
}

// Levenshtein is the edit distance between a and b, counting runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1]
				continue
			}
			cur[j] = 1 + min(prev[j-1], prev[j], cur[j-1])
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Suggest returns the known command closest to the first word of input.
// Ties go to the command listed first.
func Suggest(input string) (string, bool) {
	token := strings.ToLower(strings.Split(input, " ")[0])
	best, bestDist := "", maxSuggestDistance+1
	for _, known := range KnownCommands {
		if d := Levenshtein(token, known); d < bestDist {
			best, bestDist = known, d
		}
	}
	return best, bestDist <= maxSuggestDistance
}

// Autocomplete lists the vocabulary entries and alias names that start with
// partial, ignoring case.
func Autocomplete(partial string, aliasNames []string) []string {
	lower := strings.ToLower(partial)
	var out []string
	for _, group := range [][]string{completions, aliasNames} {
		for _, c := range group {
			if strings.HasPrefix(strings.ToLower(c), lower) {
				out = append(out, c)
			}
		}
	}
	return out
}

// LongestCommonPrefix is the longest string every candidate starts with.
func LongestCommonPrefix(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	prefix := candidates[0]
	for _, c := range candidates[1:] {
		for !strings.HasPrefix(c, prefix) {
			_, size := utf8.DecodeLastRuneInString(prefix)
			prefix = prefix[:len(prefix)-size]
		}
		if prefix == "" {
			break
		}
	}
	return prefix
}
