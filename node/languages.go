package node

// Language is one entry of the static list the UI offers for voting.
type Language struct {
	Name string `json:"name"`
}

var languages = []Language{
	{Name: "Elm"},
	{Name: "Rust"},
	{Name: "JavaScript"},
	{Name: "TypeScript"},
	{Name: "Elixir"},
	{Name: "Ruby"},
	{Name: "OCaml"},
	{Name: "Python"},
	{Name: "R"},
	{Name: "Go"},
	{Name: "CSharp"},
	{Name: "Haskell"},
	{Name: "Clojure"},
	{Name: "Java"},
	{Name: "Dart"},
	{Name: "Julia"},
	{Name: "Kotlin"},
	{Name: "Swift"},
	{Name: "Erlang"},
	{Name: "Lua"},
	{Name: "PHP"},
}

// Languages returns the fixed display list.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}
