package service

import (
	"bufio"
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

//go:embed common_passwords.txt
var commonPasswordsFile string

const (
	DefaultMinPasswordLength = 8
	maxSimilarity            = 0.7
)

// UserAttributes son los datos del usuario contra los que se compara la contraseña.
type UserAttributes struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
}

// PasswordValidator devuelve los mensajes de las reglas incumplidas.
type PasswordValidator interface {
	Validate(password string, attrs UserAttributes) []string
}

// PasswordPolicy aplica longitud mínima, similitud, lista común y numérica.
type PasswordPolicy struct {
	minLength int
	common    map[string]struct{}
}

func NewPasswordPolicy(minLength int) *PasswordPolicy {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	return &PasswordPolicy{
		minLength: minLength,
		common:    loadCommonPasswords(commonPasswordsFile),
	}
}

func loadCommonPasswords(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line != "" {
			set[line] = struct{}{}
		}
	}
	return set
}

func (p *PasswordPolicy) Validate(password string, attrs UserAttributes) []string {
	var problems []string
	if utf8.RuneCountInString(password) < p.minLength {
		problems = append(problems, fmt.Sprintf(
			"This password is too short. It must contain at least %d characters.", p.minLength))
	}
	if attr, ok := similarAttribute(password, attrs); ok {
		problems = append(problems, fmt.Sprintf("The password is too similar to the %s.", attr))
	}
	if _, ok := p.common[strings.ToLower(strings.TrimSpace(password))]; ok {
		problems = append(problems, "This password is too common.")
	}
	if isNumeric(password) {
		problems = append(problems, "This password is entirely numeric.")
	}
	return problems
}

func similarAttribute(password string, attrs UserAttributes) (string, bool) {
	candidates := []struct {
		name  string
		value string
	}{
		{"username", attrs.Username},
		{"first name", attrs.FirstName},
		{"last name", attrs.LastName},
		{"email address", attrs.Email},
	}
	pw := []rune(strings.ToLower(password))
	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		parts := append(splitNonWord(c.value), c.value)
		for _, part := range parts {
			value := []rune(strings.ToLower(part))
			if exceedsLengthRatio(len(pw), len(value)) {
				continue
			}
			if quickRatio(pw, value) >= maxSimilarity {
				return c.name, true
			}
		}
	}
	return "", false
}

// exceedsLengthRatio descarta valores demasiado cortos frente a la contraseña.
func exceedsLengthRatio(pwLen, valueLen int) bool {
	bound := maxSimilarity / 2 * float64(pwLen)
	return pwLen >= 10*valueLen && float64(valueLen) < bound
}

// quickRatio es 2*M/T con M la intersección de los multiconjuntos de caracteres.
func quickRatio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	counts := make(map[rune]int, len(b))
	for _, r := range b {
		counts[r]++
	}
	matches := 0
	for _, r := range a {
		if counts[r] > 0 {
			counts[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}

func splitNonWord(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
