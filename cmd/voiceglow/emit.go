package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// eventAliases maps short command-line names to wire event types.
var eventAliases = map[string]string{
	"turn-started":  eventTypeTurnStarted,
	"turn-finished": eventTypeTurnFinished,
	"turn-timeout":  eventTypeTurnTimeout,
	"ready":         eventTypeServiceReady,
}

// newEmitCommand sends one lifecycle event to a running daemon. It is meant
// to be called from the assistant runtime's event hooks.
func newEmitCommand() *cobra.Command {
	var (
		socketPath string
		followOn   bool
	)

	cmd := &cobra.Command{
		Use:   "emit <event>",
		Short: "Send a lifecycle event to the daemon",
		Long: `Send a single lifecycle event to a running daemon over its IPC socket.

Events: ` + strings.Join(emitEventNames(), ", ") + `

Wire names such as conversation_turn_started are accepted too.`,
		Example: `  voiceglow emit ready
  voiceglow emit turn-started
  voiceglow emit turn-finished --follow-on`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := eventFromArgs(args[0], followOn)
			if err != nil {
				return err
			}
			id, err := SendIPCEvent(socketPath, ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s (%s)\n", eventTypeName(ev), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&socketPath, "ipc-socket", defaultIPCSocket, "Unix domain socket path of the daemon")
	cmd.Flags().BoolVar(&followOn, "follow-on", false, "For turn-finished: another turn follows immediately")
	return cmd
}

// eventFromArgs resolves an alias or wire type to a LifecycleEvent.
func eventFromArgs(name string, followOn bool) (LifecycleEvent, error) {
	typ := name
	if alias, ok := eventAliases[name]; ok {
		typ = alias
	}

	var ev LifecycleEvent
	switch typ {
	case eventTypeTurnStarted:
		ev = TurnStarted{}
	case eventTypeTurnFinished:
		ev = TurnFinished{WithFollowOn: followOn}
	case eventTypeTurnTimeout:
		ev = TurnTimeout{}
	case eventTypeServiceReady:
		ev = ServiceReady{}
	default:
		return nil, fmt.Errorf("unknown event %q (want one of: %s)", name, strings.Join(emitEventNames(), ", "))
	}

	if followOn && typ != eventTypeTurnFinished {
		return nil, fmt.Errorf("--follow-on only applies to turn-finished")
	}
	return ev, nil
}

func emitEventNames() []string {
	names := make([]string, 0, len(eventAliases))
	for name := range eventAliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
