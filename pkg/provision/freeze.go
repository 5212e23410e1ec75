package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/executor"
)

// Freeze lists the packages visible to pip as "name==version" lines.
func Freeze(ctx context.Context, runner executor.Runner, pip string) ([]string, error) {
	res, err := runner.Run(ctx, executor.Command{Program: pip, Args: []string{"freeze"}})
	if err != nil {
		return nil, fmt.Errorf("pip freeze: %w", err)
	}

	lines := []string{}

	for line := range strings.SplitSeq(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines, nil
}
