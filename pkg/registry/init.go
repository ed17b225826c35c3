package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tabflow/tabflow/pkg/config"
	"github.com/tabflow/tabflow/pkg/ingest/core"
	"github.com/tabflow/tabflow/pkg/processors"
	"github.com/tabflow/tabflow/pkg/storage/mongostore"
	"github.com/tabflow/tabflow/pkg/storage/redisstore"
	"github.com/tabflow/tabflow/pkg/storage/sqlstore"
	"github.com/tabflow/tabflow/pkg/table"
)

func init() {
	// Register storage backends
	RegisterStorage("sql", func(ctx context.Context, cfg config.StorageConfig) (core.Storage, error) {
		st, err := sqlstore.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	})
	RegisterStorage("redis", func(ctx context.Context, cfg config.StorageConfig) (core.Storage, error) {
		rc := redisstore.DefaultConfig(cfg.Redis.Address)
		rc.Password = cfg.Redis.Password
		rc.Database = cfg.Redis.DB
		if cfg.Redis.Prefix != "" {
			rc.Prefix = cfg.Redis.Prefix
		}
		st, err := redisstore.Open(ctx, rc)
		if err != nil {
			return nil, err
		}
		return st, nil
	})
	RegisterStorage("mongo", func(ctx context.Context, cfg config.StorageConfig) (core.Storage, error) {
		st, err := mongostore.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		return st, nil
	})

	// Register processors
	RegisterProcessor("where", ruleFactory(processors.Where))
	RegisterProcessor("exclude", ruleFactory(processors.Exclude))
	RegisterProcessor("sample", func(args []string) (table.Processor, error) {
		if err := arity(args, 1, 2); err != nil {
			return nil, err
		}
		rate, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, fmt.Errorf("sample rate: %w", err)
		}
		seed, err := seedArg(args, 1)
		if err != nil {
			return nil, err
		}
		return processors.Sample(rate, seed), nil
	})
	RegisterProcessor("reservoir", func(args []string) (table.Processor, error) {
		if err := arity(args, 1, 2); err != nil {
			return nil, err
		}
		k, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("reservoir size: %w", err)
		}
		seed, err := seedArg(args, 1)
		if err != nil {
			return nil, err
		}
		return processors.Reservoir(k, seed), nil
	})
	RegisterProcessor("skip", countFactory(processors.Skip))
	RegisterProcessor("head", countFactory(processors.Head))
	RegisterProcessor("anonymize", func(args []string) (table.Processor, error) {
		if err := arity(args, 1, 2); err != nil {
			return nil, err
		}
		salt := ""
		if len(args) > 1 {
			salt = args[1]
		}
		return processors.Anonymize(strings.Split(args[0], ","), salt), nil
	})
	RegisterProcessor("pseudonymize", func(args []string) (table.Processor, error) {
		if err := arity(args, 1, 1); err != nil {
			return nil, err
		}
		return processors.Pseudonymize(strings.Split(args[0], ","), nil), nil
	})
	RegisterProcessor("rename", func(args []string) (table.Processor, error) {
		if err := arity(args, 1, 1); err != nil {
			return nil, err
		}
		mapping := map[string]string{}
		for _, pair := range strings.Split(args[0], ",") {
			from, to, ok := strings.Cut(pair, "=")
			if !ok || from == "" || to == "" {
				return nil, fmt.Errorf("rename pair %q is not from=to", pair)
			}
			mapping[from] = to
		}
		return processors.Rename(mapping), nil
	})
}

// ruleFactory parses "field:op:value"; the value may itself contain colons.
func ruleFactory(build func(...processors.Rule) table.Processor) ProcessorFactory {
	return func(args []string) (table.Processor, error) {
		if len(args) < 3 {
			return nil, fmt.Errorf("expected field:op:value, got %d argument(s)", len(args))
		}
		rule, err := processors.NewRule(args[0], processors.Op(args[1]), strings.Join(args[2:], ":"))
		if err != nil {
			return nil, err
		}
		return build(rule), nil
	}
}

func countFactory(build func(int) table.Processor) ProcessorFactory {
	return func(args []string) (table.Processor, error) {
		if err := arity(args, 1, 1); err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid row count %q", args[0])
		}
		return build(n), nil
	}
}

func seedArg(args []string, i int) (int64, error) {
	if len(args) <= i {
		return 1, nil
	}
	seed, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	return seed, nil
}

func arity(args []string, min, max int) error {
	if len(args) < min || len(args) > max {
		return fmt.Errorf("expected %d to %d argument(s), got %d", min, max, len(args))
	}
	return nil
}

