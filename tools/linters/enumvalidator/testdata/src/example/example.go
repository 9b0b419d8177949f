package example

type Source string

const (
	SourceSlack Source = "slack"
	SourceJira  Source = "jira"
)

type Kind string

const (
	KindTransient Kind = "transient_fetch_error"
)

// Label has no constants, so it is not an enum.
type Label string

type Update struct {
	Source Source
	Label  Label
}

type Error struct {
	Kind Kind
}

func bad() {
	u := &Update{}
	u.Source = "teams" // want "enum field Source assigned string literal"

	e := Error{Kind: "oops"} // want "enum field Kind assigned string literal"
	_ = e
}

func good() {
	u := &Update{}
	u.Source = SourceSlack
	u.Label = "free text"

	e := Error{Kind: KindTransient}
	_ = e
}

func alsoGood() {
	source := SourceJira
	u := &Update{Source: source}
	_ = u
}
