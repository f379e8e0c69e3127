/*
Package dsl builds conversation flows in Go code instead of YAML or JSON
files, which is handy for tests and for flows generated at runtime.

	b := dsl.New("greet")

	b.Conversation("greet", "Hi {{name}}, is now a good time to talk?").
		Branch("user agrees to talk", "pitch").
		Branch("user asks to be called later", "later")

	b.Prompt("pitch", "Explain the new plan and ask for their email.").
		Mandatory("email", "the caller's email address", "What's the best email for you?").
		Branch("user shares their email", "bye").Requires("email")

	b.Ending("later", "No problem, we'll call you back.")
	b.Ending("bye", "Thanks {{name}}, talk soon.")

	graph, err := b.Graph()
*/
package dsl
