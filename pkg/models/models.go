package models

// Server is a registered media server. The current address and user are
// references into the server's own address and user sets.
type Server struct {
	ID                     string
	Name                   string
	CurrentServerAddressID *string
	CurrentUserID          *string
}

// ServerAddress is one network address a server can be reached at
type ServerAddress struct {
	ID       string
	ServerID string
	Address  string
}

// User is a signed-in account on a server
type User struct {
	ID          string
	ServerID    string
	Name        string
	AccessToken *string
}

// ServerWithAddressesAndUsers is a server record loaded together with its children
type ServerWithAddressesAndUsers struct {
	Server    Server
	Addresses []ServerAddress
	Users     []User
}

// CurrentAddress returns the address matching Server.CurrentServerAddressID
func (s *ServerWithAddressesAndUsers) CurrentAddress() (ServerAddress, bool) {
	return s.AddressByID(s.Server.CurrentServerAddressID)
}

// CurrentUser returns the user matching Server.CurrentUserID
func (s *ServerWithAddressesAndUsers) CurrentUser() (User, bool) {
	return s.UserByID(s.Server.CurrentUserID)
}

// AddressByID returns the address with the given id. A nil id never matches.
func (s *ServerWithAddressesAndUsers) AddressByID(id *string) (ServerAddress, bool) {
	if id == nil {
		return ServerAddress{}, false
	}
	for _, addr := range s.Addresses {
		if addr.ID == *id {
			return addr, true
		}
	}
	return ServerAddress{}, false
}

// UserByID returns the user with the given id. A nil id never matches.
func (s *ServerWithAddressesAndUsers) UserByID(id *string) (User, bool) {
	if id == nil {
		return User{}, false
	}
	for _, user := range s.Users {
		if user.ID == *id {
			return user, true
		}
	}
	return User{}, false
}

// DiscoveredServer is a server found on the local network. Never persisted.
type DiscoveredServer struct {
	ID      string
	Name    string
	Address string
}
