/*
Package runner plays a call in the terminal or from a script.

It stands in for the telephony side of a call: an IOHandler supplies final
caller utterances and shows what the agent said, while the Runner drives a
live call through greeting, turns and hangup.

# Key Components

  - Runner: the loop that opens the call, feeds turns and ends it.
  - IOHandler: decouples how utterances arrive (terminal, JSON Lines).
  - TextHandler: interactive terminal IO with coloured speaker labels.
  - JSONHandler: one TurnResult object per line, for harnesses.
  - SanitizeInput: the utterance policy shared with the HTTP surface.

Lines starting with a slash are simulator directives: /webhook <json>
queues an integration response, /vars and /node inspect the session and
/hangup (or exit) ends the call.

# Usage

	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithSilenceTimeout(30*time.Second),
	)
	if err := r.Run(ctx, call); err != nil {
		log.Fatal(err)
	}
*/
package runner
