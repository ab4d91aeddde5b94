package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/scoring"
	"github.com/carelink/medirank/server/runner/policyupdate"
)

var updatePolicyCmd = &cobra.Command{
	Use:   "update-policy",
	Short: "Fold recent selection feedback into the policy networks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}

		domainNames, _ := cmd.Flags().GetStringSlice("domains")
		policies := make(map[recommend.Domain]*scoring.Policy, len(domainNames))
		for _, name := range domainNames {
			domain, err := parseDomain(name)
			if err != nil {
				return err
			}
			policy, err := loadPolicy(p, domain)
			if err != nil {
				return err
			}
			policies[domain] = policy
		}

		st, err := openStore(cmd, p)
		if err != nil {
			return err
		}
		defer st.Close()

		runner := policyupdate.NewRunner(st, policies)
		if rate, err := cmd.Flags().GetFloat64("learning-rate"); err == nil && rate > 0 {
			runner.SetLearningRate(rate)
		}
		runner.RunOnce(cmd.Context())

		for domain, policy := range policies {
			snapshot := policy.Snapshot()
			if err := scoring.SaveParameters(snapshot, policyPath(p.Data, domain)); err != nil {
				return err
			}
			fmt.Printf("%s policy at version %d\n", domain, snapshot.Version)
		}
		return nil
	},
}

func init() {
	updatePolicyCmd.Flags().StringSlice("domains",
		[]string{"hospital", "pharmacy", "drug", "condition"},
		"domains whose policies to update")
	updatePolicyCmd.Flags().Float64("learning-rate", 0, "gradient step size (default 0.01)")
}
