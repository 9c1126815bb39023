package markethours

// Exchange holidays, local dates. Tentative NSE dates follow the published
// provisional list.
var nseHolidays = dateSet(
	"2026-01-26", // Republic Day
	"2026-02-17", // Mahashivratri
	"2026-03-14", // Holi
	"2026-03-31", // Id-ul-Fitr
	"2026-04-02", // Ram Navami
	"2026-04-06", // Mahavir Jayanti
	"2026-04-10", // Good Friday
	"2026-04-14", // Dr. Ambedkar Jayanti
	"2026-05-01", // Maharashtra Day
	"2026-06-07", // Bakrid
	"2026-07-06", // Muharram
	"2026-08-15", // Independence Day
	"2026-08-16", // Janmashtami
	"2026-09-05", // Milad-un-Nabi
	"2026-10-02", // Gandhi Jayanti
	"2026-10-20", // Dussehra
	"2026-10-21", // Dussehra
	"2026-11-05", // Diwali Laxmi Pujan
	"2026-11-06", // Diwali Balipratipada
	"2026-11-07", // Bhai Dooj
	"2026-11-19", // Guru Nanak Jayanti
	"2026-12-25", // Christmas
)

var usHolidays = dateSet(
	"2026-01-01", // New Year's Day
	"2026-01-19", // Martin Luther King Jr. Day
	"2026-02-16", // Washington's Birthday
	"2026-04-03", // Good Friday
	"2026-05-25", // Memorial Day
	"2026-06-19", // Juneteenth
	"2026-07-03", // Independence Day (observed)
	"2026-09-07", // Labor Day
	"2026-11-26", // Thanksgiving
	"2026-12-25", // Christmas
)

func dateSet(dates ...string) map[string]bool {
	out := make(map[string]bool, len(dates))
	for _, d := range dates {
		out[d] = true
	}
	return out
}
