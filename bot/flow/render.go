package flow

import (
	"strings"

	"github.com/m3rciful/callerbot/bot/provider"
	"github.com/m3rciful/callerbot/bot/session"
	"github.com/m3rciful/callerbot/core/telegram/format"
)

// RenderProfile formats one lookup hit as MarkdownV2. Only the first phone
// and first address are used; missing values render empty.
func RenderProfile(p provider.Profile) string {
	var phone provider.Phone
	if len(p.Phones) > 0 {
		phone = p.Phones[0]
	}
	var addr provider.Address
	if len(p.Addresses) > 0 {
		addr = p.Addresses[0]
	}
	country := addr.CountryCode
	if country == "" {
		country = phone.CountryCode
	}
	street := addr.Address
	if street == "" {
		street = strings.TrimSpace(strings.Join(nonEmpty(addr.Street, addr.ZipCode), ", "))
	}

	var b strings.Builder
	field(&b, "Name", p.Name)
	field(&b, "Gender", p.Gender)
	field(&b, "Number", phone.E164Format)
	field(&b, "National format", phone.NationalFormat)
	field(&b, "Number type", phone.NumberType)
	field(&b, "Carrier", phone.Carrier)
	field(&b, "Country", country)
	field(&b, "City", addr.City)
	field(&b, "Address", street)
	field(&b, "Time zone", addr.TimeZone)
	field(&b, "Email", firstEmail(p.InternetAddresses))
	field(&b, "Id", p.ID)
	return strings.TrimSuffix(b.String(), "\n")
}

// RenderInfo formats the session summary shown by /info.
func RenderInfo(s session.Session) string {
	var b strings.Builder
	field(&b, "Status", string(s.Status()))
	switch st := s.State.(type) {
	case session.AwaitingOTP:
		field(&b, "Phone number", st.PhoneNumber)
	case session.AwaitingCountryCode:
		field(&b, "Installation id", st.InstallationID)
	case session.LoggedIn:
		field(&b, "Installation id", st.InstallationID)
		field(&b, "Country code", st.CountryCode)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func field(b *strings.Builder, label, value string) {
	b.WriteByte('*')
	b.WriteString(format.EscapeV2(label))
	b.WriteString(":* ")
	b.WriteString(format.EscapeV2(value))
	b.WriteByte('\n')
}

func firstEmail(addrs []provider.InternetAddress) string {
	for _, a := range addrs {
		if strings.EqualFold(a.Service, "email") {
			return a.ID
		}
	}
	return ""
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
