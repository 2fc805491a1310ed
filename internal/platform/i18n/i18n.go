// Package i18n renders user-facing chat messages in the supported locales.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// BaseLocale is the canonical source locale.
const BaseLocale = "en-US"

// Message keys.
const (
	KeyClaimSuccess     = "claim.success"
	KeyClaimTaken       = "claim.taken"
	KeyClaimFailed      = "claim.failed"
	KeySearchFound      = "search.found"
	KeySearchNotFound   = "search.not_found"
	KeySearchFailed     = "search.failed"
	KeySearchStale      = "search.stale"
	KeyMessageEmpty     = "error.MESSAGE_EMPTY"
	KeyRecipientMissing = "error.RECIPIENT_REQUIRED"
	KeyChannelEmpty     = "error.CHANNEL_EMPTY"
	KeyUsernameInvalid  = "error.USERNAME_INVALID"
	KeyProfileNameEmpty = "error.PROFILE_NAME_EMPTY"
	KeyProfileNotOwned  = "error.PROFILE_NOT_OWNED"
)

var supported = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
}

var matcher = language.NewMatcher(supported)

var messages = map[language.Tag]map[string]string{
	language.AmericanEnglish: {
		KeyClaimSuccess:     "Username successfully claimed!",
		KeyClaimTaken:       "Username is already taken. Please try another.",
		KeyClaimFailed:      "Error claiming username. Please try again.",
		KeySearchFound:      "Found user with username: %s",
		KeySearchNotFound:   "No user found with this username.",
		KeySearchFailed:     "Error searching for user. Please try again.",
		KeySearchStale:      "Search for %s finished after the conversation changed.",
		KeyMessageEmpty:     "Message cannot be empty. Please write a message.",
		KeyRecipientMissing: "Choose someone to message first.",
		KeyChannelEmpty:     "Channel name cannot be empty.",
		KeyUsernameInvalid:  "Usernames are 3-32 lowercase letters, digits, dots, dashes or underscores.",
		KeyProfileNameEmpty: "Name cannot be empty.",
		KeyProfileNotOwned:  "You can only edit your own name.",
	},
	language.BrazilianPortuguese: {
		KeyClaimSuccess:     "Nome de usuário registrado com sucesso!",
		KeyClaimTaken:       "Nome de usuário já está em uso. Tente outro.",
		KeyClaimFailed:      "Erro ao registrar nome de usuário. Tente novamente.",
		KeySearchFound:      "Usuário encontrado: %s",
		KeySearchNotFound:   "Nenhum usuário encontrado com este nome.",
		KeySearchFailed:     "Erro ao buscar usuário. Tente novamente.",
		KeySearchStale:      "A busca por %s terminou depois que a conversa mudou.",
		KeyMessageEmpty:     "A mensagem não pode ser vazia.",
		KeyRecipientMissing: "Escolha alguém para conversar primeiro.",
		KeyChannelEmpty:     "O nome do canal não pode ser vazio.",
		KeyUsernameInvalid:  "Nomes de usuário têm de 3 a 32 letras minúsculas, dígitos, pontos, hífens ou sublinhados.",
		KeyProfileNameEmpty: "O nome não pode ser vazio.",
		KeyProfileNotOwned:  "Você só pode editar o seu próprio nome.",
	},
}

var defaultCatalog = mustBuildCatalog()

func mustBuildCatalog() *catalog.Builder {
	builder := catalog.NewBuilder(catalog.Fallback(language.AmericanEnglish))
	for tag, entries := range messages {
		for key, msg := range entries {
			if err := builder.SetString(tag, key, msg); err != nil {
				panic("i18n: set " + key + ": " + err.Error())
			}
		}
	}
	return builder
}

// Match resolves a locale string (BCP 47 or an Accept-Language value) to a
// supported tag, falling back to en-US.
func Match(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return language.AmericanEnglish
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return language.AmericanEnglish
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return language.AmericanEnglish
	}
	return supported[index]
}

// Printer returns a printer for locale backed by the chat catalog.
func Printer(locale string) *message.Printer {
	return message.NewPrinter(Match(locale), message.Catalog(defaultCatalog))
}

// ErrorKey returns the message key used for a domain error code.
func ErrorKey(code string) string {
	return "error." + code
}
