package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fergusinlondon/actorstage/mailbox"
	"github.com/fergusinlondon/actorstage/stage"
)

var openingBalance int64

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scripted deposit/withdraw/overdraft demo",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int64Var(&openingBalance, "opening-balance", 100,
		"starting balance for the demo account")
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := buildStage()
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	account, err := stage.ActorFor(s, AccountProtocol{}, NewAccountProxy,
		overdraftSupervisorName, mailbox.Options{}, openingBalance)
	if err != nil {
		return fmt.Errorf("open account: %w", err)
	}

	steps := []struct {
		label string
		run   func() (any, error)
	}{
		{"deposit 50", func() (any, error) { return account.Deposit(50).Wait() }},
		{"withdraw 30", func() (any, error) { return account.Withdraw(30).Wait() }},
		{"withdraw 1000 (overdraft)", func() (any, error) { return account.Withdraw(1000).Wait() }},
		{"balance after restart", func() (any, error) { return account.Balance().Wait() }},
	}

	for _, step := range steps {
		result, err := step.run()
		if err != nil {
			fmt.Printf("%-28s -> error: %v\n", step.label, err)
			continue
		}
		fmt.Printf("%-28s -> %v\n", step.label, result)
	}

	return nil
}
