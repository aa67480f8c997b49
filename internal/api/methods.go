package api

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lendkeeper.v1.Lending"

// Full method names.
const (
	MethodRegister          = "/" + ServiceName + "/Register"
	MethodLogin             = "/" + ServiceName + "/Login"
	MethodCreateBook        = "/" + ServiceName + "/CreateBook"
	MethodUpdateBook        = "/" + ServiceName + "/UpdateBook"
	MethodDeleteBook        = "/" + ServiceName + "/DeleteBook"
	MethodGetBook           = "/" + ServiceName + "/GetBook"
	MethodListBooks         = "/" + ServiceName + "/ListBooks"
	MethodSearchBooks       = "/" + ServiceName + "/SearchBooks"
	MethodBorrow            = "/" + ServiceName + "/Borrow"
	MethodReturnBook        = "/" + ServiceName + "/ReturnBook"
	MethodDeleteBorrow      = "/" + ServiceName + "/DeleteBorrow"
	MethodListBorrows       = "/" + ServiceName + "/ListBorrows"
	MethodBorrowHistory     = "/" + ServiceName + "/BorrowHistory"
	MethodMyBorrows         = "/" + ServiceName + "/MyBorrows"
	MethodOverdueBorrows    = "/" + ServiceName + "/OverdueBorrows"
	MethodOverdueReport     = "/" + ServiceName + "/OverdueReport"
	MethodListUsers         = "/" + ServiceName + "/ListUsers"
	MethodGetUser           = "/" + ServiceName + "/GetUser"
	MethodUpdateUser        = "/" + ServiceName + "/UpdateUser"
	MethodDeleteUser        = "/" + ServiceName + "/DeleteUser"
	MethodWatchAvailability = "/" + ServiceName + "/WatchAvailability"
)
