package classifier

import "github.com/tracyhatemice/orderwatch/internal/order"

// Lang tags a rule with the language of its phrasing.
type Lang string

const (
	Polish  Lang = "pl"
	English Lang = "en"
)

// Rule is one phrasing of a status. Pattern is a regular expression
// matched against folded text: lowercase, no diacritics, single spaces.
// A leading word boundary is added when the rule is compiled.
type Rule struct {
	Lang    Lang
	Pattern string
}

// Table maps each status to its rules. Masks are removed from the text
// before the rules of that status run.
type Table struct {
	Rules map[order.Status][]Rule
	Masks map[order.Status][]string
}

func pl(p string) Rule { return Rule{Lang: Polish, Pattern: p} }
func en(p string) Rule { return Rule{Lang: English, Pattern: p} }

// DefaultTable returns the Polish and English phrasings used by Amazon
// order notifications. Each call returns a fresh copy.
func DefaultTable() Table {
	return Table{
		Rules: map[order.Status][]Rule{
			order.Ordered: {
				pl(`zamowion\w*`),
				pl(`dziekujemy za (zlozenie )?zamowieni`),
				pl(`zamowienie zostalo (zlozone|przyjete)`),
				pl(`potwierdzenie zamowienia`),
				en(`thank(s| you) for (your )?order`),
				en(`your order has been (placed|received)`),
				en(`ordered\b`),
			},
			order.Shipped: {
				pl(`wyslan\w*`),
				pl(`wyslano\b`),
				pl(`nadan[aoey]\b`),
				en(`shipped\b`),
				en(`dispatched\b`),
				en(`on (its|the) way\b`),
			},
			order.OutForDelivery: {
				pl(`(przekazan|wydan)\w* do doreczenia`),
				pl(`w doreczeniu\b`),
				pl(`kurier (juz )?jedzie`),
				en(`out for delivery\b`),
				en(`arriving today\b`),
			},
			order.DeliveryAttempt: {
				pl(`prob\w* (dostarczenia|doreczenia)`),
				pl(`podjeto probe`),
				pl(`nieudan\w* (dostaw|dorecz)\w*`),
				en(`delivery attempt`),
				en(`attempted delivery\b`),
				en(`we (tried|attempted) to deliver`),
				en(`(unable|were unable) to deliver`),
			},
			order.ReadyForPickup: {
				pl(`gotow\w* do odbioru`),
				pl(`czeka na odbior`),
				pl(`oczekuje na odbior`),
				en(`ready for pick-?up\b`),
				en(`available for pick-?up\b`),
			},
			order.PickedUp: {
				pl(`odebran[aoey]\b`),
				pl(`odebrano\b`),
				en(`(has been|was|were) picked up\b`),
			},
			order.Delivered: {
				pl(`dostarczon\w*`),
				pl(`doreczon\w*`),
				en(`delivered\b`),
			},
		},
		Masks: map[order.Status][]string{
			order.Shipped: {
				`(zostanie|zostana|bedzie|beda) wyslan\w*`,
				`will be (shipped|dispatched)`,
			},
			order.Delivered: {
				`(zostanie|zostana|bedzie|beda) (dostarczon|doreczon)\w*`,
				`nie (zostal\w* )?(dostarczon|doreczon)\w*`,
				`will be delivered`,
				`(could not|couldn't|was not|wasn't|not) (be )?delivered`,
			},
			order.PickedUp: {
				`(zostanie|moze zostac|nie zostal\w*) odebran\w*`,
				`(nieodebran|nie odebran)\w*`,
				`(can|must|will) be picked up`,
			},
		},
	}
}
