package api

type Server struct {
	db    DatabaseService
	users UserRepository
	auth  AuthService
}

func NewServer(db DatabaseService, authService AuthService) *Server {
	return &Server{
		db:    db,
		users: db.Queries(),
		auth:  authService,
	}
}
