package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/lendkeeper/internal/api"
	"github.com/and161185/lendkeeper/internal/client"
)

const dayLayout = "2006-01-02"

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "lendkeeper",
		Short:         "Client for the lendkeeper lending service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.addr, "addr", "localhost:8443", "server address")
	pf.StringVar(&a.caPath, "cacert", "", "CA certificate (PEM)")
	pf.BoolVar(&a.skipVerify, "insecure", false, "skip certificate verification (dev)")
	pf.BoolVar(&a.plaintext, "plaintext", false, "connect without TLS")
	pf.DurationVar(&a.timeout, "timeout", 30*time.Second, "per-command RPC timeout")

	root.AddCommand(
		a.versionCmd(),
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.booksCmd(),
		a.borrowCmd(),
		a.returnCmd(),
		a.borrowsCmd(),
		a.usersCmd(),
		a.watchCmd(),
	)
	return root
}

// withClient runs fn against a connection bounded by the command timeout.
func (a *app) withClient(cmd *cobra.Command, auth bool, fn func(ctx context.Context, cl *client.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	dial := a.dial
	if auth {
		dial = a.authed
	}
	cl, closer, err := dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	return fn(ctx, cl)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseDay parses YYYY-MM-DD. Empty input yields nil.
func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(dayLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want %s)", s, dayLayout)
	}
	return &d, nil
}

func (a *app) password(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	pw, err := a.readPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if pw == "" {
		return "", errors.New("empty password")
	}
	return pw, nil
}

// ---- session ----

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.out, "lendkeeper %s (%s)\n", version, buildDate)
			return err
		},
	}
}

func (a *app) registerCmd() *cobra.Command {
	var req api.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := a.password(req.Password)
			if err != nil {
				return err
			}
			in := req
			in.Password = pw
			return a.withClient(cmd, false, func(ctx context.Context, cl *client.Client) error {
				u, err := cl.Register(ctx, &in)
				if err != nil {
					return err
				}
				return a.printJSON(u)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&req.Username, "username", "u", "", "username")
	f.StringVarP(&req.Password, "password", "p", "", "password (prompted when empty)")
	f.StringVar(&req.Name, "name", "", "display name")
	f.StringVar(&req.ContactInfo, "contact", "", "contact info")
	f.StringVar(&req.Role, "role", "", "PATRON or LIBRARIAN (default PATRON)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := a.password(password)
			if err != nil {
				return err
			}
			return a.withClient(cmd, false, func(ctx context.Context, cl *client.Client) error {
				resp, err := cl.Login(ctx, username, pw)
				if err != nil {
					return err
				}
				if err := saveToken(tokenFile{
					AccessToken: resp.AccessToken,
					ExpiresAt:   resp.ExpiresAt,
					Username:    resp.User.Username,
				}); err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.out, "logged in as %s (%s) until %s\n",
					resp.User.Username, resp.User.Role, resp.ExpiresAt.Local().Format(time.RFC3339))
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved access token",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return removeToken()
		},
	}
}

// ---- books ----

type bookFlags struct {
	in        api.BookInput
	published string
}

func (b *bookFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&b.in.Title, "title", "", "title")
	f.StringVar(&b.in.Author, "author", "", "author")
	f.StringVar(&b.in.ISBN, "isbn", "", "ISBN")
	f.StringVar(&b.published, "published", "", "publication date (YYYY-MM-DD)")
	f.StringVar(&b.in.Genre, "genre", "", "genre")
}

func (b *bookFlags) input() (api.BookInput, error) {
	in := b.in
	d, err := parseDay(b.published)
	if err != nil {
		return in, err
	}
	in.PublicationDate = d
	return in, nil
}

func (a *app) booksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "books", Short: "Manage the catalog"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				books, err := cl.ListBooks(ctx)
				if err != nil {
					return err
				}
				return a.printJSON(books)
			})
		},
	}

	search := &cobra.Command{
		Use:   "search KEYWORD",
		Short: "Search titles and authors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kw := strings.Join(args, " ")
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				books, err := cl.SearchBooks(ctx, kw)
				if err != nil {
					return err
				}
				return a.printJSON(books)
			})
		},
	}

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				b, err := cl.GetBook(ctx, id)
				if err != nil {
					return err
				}
				return a.printJSON(b)
			})
		},
	}

	var addFlags bookFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := addFlags.input()
			if err != nil {
				return err
			}
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				b, err := cl.CreateBook(ctx, &in)
				if err != nil {
					return err
				}
				return a.printJSON(b)
			})
		},
	}
	addFlags.bind(add)

	var updFlags bookFlags
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Replace a book's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			in, err := updFlags.input()
			if err != nil {
				return err
			}
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				b, err := cl.UpdateBook(ctx, &api.UpdateBookRequest{ID: id, BookInput: in})
				if err != nil {
					return err
				}
				return a.printJSON(b)
			})
		},
	}
	updFlags.bind(update)

	rm := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a book that is not lent out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				return cl.DeleteBook(ctx, id)
			})
		},
	}

	cmd.AddCommand(list, search, get, add, update, rm)
	return cmd
}

// ---- lending ----

func (a *app) borrowCmd() *cobra.Command {
	var on, returnBy string
	cmd := &cobra.Command{
		Use:   "borrow BOOK_ID",
		Short: "Borrow a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := &api.BorrowRequest{BookID: id, BorrowDate: time.Now()}
			d, err := parseDay(on)
			if err != nil {
				return err
			}
			if d != nil {
				req.BorrowDate = *d
			}
			if req.RequestedReturnDate, err = parseDay(returnBy); err != nil {
				return err
			}
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				rec, err := cl.Borrow(ctx, req)
				if err != nil {
					return err
				}
				return a.printJSON(rec)
			})
		},
	}
	cmd.Flags().StringVar(&on, "date", "", "borrow date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&returnBy, "return-by", "", "requested return date (YYYY-MM-DD)")
	return cmd
}

func (a *app) returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return BORROW_ID",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				rec, err := cl.ReturnBook(ctx, id)
				if err != nil {
					return err
				}
				return a.printJSON(rec)
			})
		},
	}
}

func (a *app) borrowsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "borrows", Short: "Inspect borrows"}

	listing := func(use, short string, args cobra.PositionalArgs,
		fetch func(ctx context.Context, cl *client.Client, args []string) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
					v, err := fetch(ctx, cl, args)
					if err != nil {
						return err
					}
					return a.printJSON(v)
				})
			},
		}
	}

	list := listing("list", "List borrows visible to you", cobra.NoArgs,
		func(ctx context.Context, cl *client.Client, _ []string) (any, error) { return cl.ListBorrows(ctx) })
	mine := listing("mine", "List your own borrows", cobra.NoArgs,
		func(ctx context.Context, cl *client.Client, _ []string) (any, error) { return cl.MyBorrows(ctx) })
	history := listing("history [USERNAME]", "Borrow history of one user or everyone", cobra.MaximumNArgs(1),
		func(ctx context.Context, cl *client.Client, args []string) (any, error) {
			var username string
			if len(args) == 1 {
				username = args[0]
			}
			return cl.BorrowHistory(ctx, username)
		})

	var asOf string
	overdue := listing("overdue", "List overdue borrows", cobra.NoArgs,
		func(ctx context.Context, cl *client.Client, _ []string) (any, error) {
			d, err := parseDay(asOf)
			if err != nil {
				return nil, err
			}
			return cl.OverdueBorrows(ctx, &api.OverdueRequest{AsOf: d})
		})
	overdue.Flags().StringVar(&asOf, "as-of", "", "reference day (YYYY-MM-DD, default server today)")

	var reportAsOf string
	report := listing("report", "Overdue report with due dates", cobra.NoArgs,
		func(ctx context.Context, cl *client.Client, _ []string) (any, error) {
			d, err := parseDay(reportAsOf)
			if err != nil {
				return nil, err
			}
			return cl.OverdueReport(ctx, &api.OverdueRequest{AsOf: d})
		})
	report.Flags().StringVar(&reportAsOf, "as-of", "", "reference day (YYYY-MM-DD, default server today)")

	rm := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a borrow and free its book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				return cl.DeleteBorrow(ctx, id)
			})
		},
	}

	cmd.AddCommand(list, mine, history, overdue, report, rm)
	return cmd
}

// ---- users ----

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Manage accounts"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				users, err := cl.ListUsers(ctx)
				if err != nil {
					return err
				}
				return a.printJSON(users)
			})
		},
	}

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				u, err := cl.GetUser(ctx, id)
				if err != nil {
					return err
				}
				return a.printJSON(u)
			})
		},
	}

	var upd api.UpdateUserRequest
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change name, contact info or role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := upd
			req.ID = id
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				u, err := cl.UpdateUser(ctx, &req)
				if err != nil {
					return err
				}
				return a.printJSON(u)
			})
		},
	}
	update.Flags().StringVar(&upd.Name, "name", "", "display name")
	update.Flags().StringVar(&upd.ContactInfo, "contact", "", "contact info")
	update.Flags().StringVar(&upd.Role, "role", "", "PATRON or LIBRARIAN (unchanged when empty)")

	rm := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a user without open borrows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withClient(cmd, true, func(ctx context.Context, cl *client.Client) error {
				return cl.DeleteUser(ctx, id)
			})
		},
	}

	cmd.AddCommand(list, get, update, rm)
	return cmd
}

// ---- events ----

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [BOOK_ID...]",
		Short: "Stream availability changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.WatchRequest{}
			for _, s := range args {
				id, err := parseID(s)
				if err != nil {
					return err
				}
				req.BookIDs = append(req.BookIDs, id)
			}

			ctx := cmd.Context()
			cl, closer, err := a.authed(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			stream, err := cl.WatchAvailability(ctx, req)
			if err != nil {
				return err
			}
			for {
				ev, err := stream.Recv()
				if err != nil {
					if errors.Is(err, io.EOF) || ctx.Err() != nil {
						return nil
					}
					return err
				}
				b, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(a.out, string(b)); err != nil {
					return err
				}
			}
		},
	}
}
